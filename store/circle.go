package store

// Circle is the display subset of a circle joined into search results.
// Circle management lives in a collaborator service; this store reads only.
type Circle struct {
	ID   int32
	Name string
}

// CircleMembership is a (user, circle) pair with an activity flag.
// Consumed read-only: only active memberships contribute to visibility.
type CircleMembership struct {
	UserID   int32
	CircleID int32
	Active   bool
}

// FindCircleMembership is the find condition for circle memberships.
type FindCircleMembership struct {
	UserID   *int32
	CircleID *int32

	// ActiveOnly restricts to memberships that have not been left.
	ActiveOnly bool
}
