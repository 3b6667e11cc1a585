package retrieval

import (
	"context"
	"log/slog"

	"github.com/circleshare/circleshare/store"
)

// MembershipStore is the slice of the store the scope resolver needs.
type MembershipStore interface {
	ListCircleMemberships(ctx context.Context, find *store.FindCircleMembership) ([]*store.CircleMembership, error)
}

// ScopeResolver computes the set of circle IDs a requester may search.
// Any failure to load memberships resolves to the empty set, never an
// implicit widening to all circles.
type ScopeResolver struct {
	store MembershipStore
}

// NewScopeResolver creates a ScopeResolver.
func NewScopeResolver(s MembershipStore) *ScopeResolver {
	return &ScopeResolver{store: s}
}

// ActiveCircles returns the IDs of circles the user is an active member
// of. A membership lookup failure yields no visibility: the caller sees
// an empty scope, not an error.
func (r *ScopeResolver) ActiveCircles(ctx context.Context, userID int32) []int32 {
	memberships, err := r.store.ListCircleMemberships(ctx, &store.FindCircleMembership{
		UserID:     &userID,
		ActiveOnly: true,
	})
	if err != nil {
		slog.Warn("failed to resolve accessible circles, treating scope as empty",
			slog.Int("user_id", int(userID)),
			slog.String("error", err.Error()))
		return []int32{}
	}

	circleIDs := make([]int32, 0, len(memberships))
	for _, m := range memberships {
		circleIDs = append(circleIDs, m.CircleID)
	}
	return circleIDs
}

// Narrow intersects the accessible circles with a requested subset.
// Requested IDs outside the accessible set are dropped silently so the
// response never reveals which circles exist.
func Narrow(accessible, requested []int32) []int32 {
	if len(requested) == 0 {
		return accessible
	}

	allowed := make(map[int32]bool, len(accessible))
	for _, id := range accessible {
		allowed[id] = true
	}

	narrowed := make([]int32, 0, len(requested))
	seen := make(map[int32]bool, len(requested))
	for _, id := range requested {
		if allowed[id] && !seen[id] {
			narrowed = append(narrowed, id)
			seen[id] = true
		}
	}
	return narrowed
}
