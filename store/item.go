package store

import (
	"strings"

	"github.com/pkg/errors"
)

// Item represents a shareable physical item in the catalog.
type Item struct {
	ID          int32
	UID         string
	OwnerID     int32
	Name        string
	Description string
	Categories  []string
	Tags        []string
	ImageRef    string // representative image, object-storage path
	CreatedTs   int64
	UpdatedTs   int64

	// CircleIDs is the item's visibility set. An item is visible to a
	// caller iff at least one of these circles is in the caller's
	// active-membership set.
	CircleIDs []int32
}

// CreateItem is the create request for an item.
type CreateItem struct {
	OwnerID     int32
	Name        string
	Description string
	Categories  []string
	Tags        []string
	ImageRef    string
	CircleIDs   []int32
}

// Validate validates the CreateItem request.
func (c *CreateItem) Validate() error {
	if c.OwnerID <= 0 {
		return errors.Errorf("invalid OwnerID: %d", c.OwnerID)
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("item name cannot be empty")
	}
	if len(c.CircleIDs) == 0 {
		return errors.New("item must belong to at least one circle")
	}
	return nil
}

// UpdateItem is the update request for an item. Nil fields are left
// unchanged.
type UpdateItem struct {
	ID          int32
	Name        *string
	Description *string
	Categories  []string
	Tags        []string
	ImageRef    *string
	CircleIDs   []int32
	UpdatedTs   *int64
}

// FindItem is the find condition for items.
type FindItem struct {
	ID      *int32
	UID     *string
	OwnerID *int32

	// IDs performs a batched lookup, used by result enrichment.
	IDs []int32

	// CircleIDs restricts to items visible in any of these circles.
	CircleIDs []int32

	Limit *int
}

// DeleteItem is the delete request for an item. Circle associations and
// the embedding are removed in the same transaction (cascade).
type DeleteItem struct {
	ID int32
}

// Owner is the display subset of a user joined into search results.
type Owner struct {
	ID        int32
	Username  string
	Nickname  string
	AvatarURL string
}

// ItemWithScore represents a vector search result with similarity score.
type ItemWithScore struct {
	Item  *Item
	Score float32 // cosine similarity, 0-1, higher is more similar
}
