package store

import (
	"github.com/pkg/errors"
)

// ItemEmbedding represents the vector embedding of an item. One per item,
// overwritten in place on image change, never versioned.
type ItemEmbedding struct {
	ID        int32
	ItemID    int32
	Model     string
	Embedding []float32
	CreatedTs int64
	UpdatedTs int64
}

// FindItemsWithoutEmbedding is the find condition for items lacking an
// embedding for the given model. Used by the write-path backfill.
type FindItemsWithoutEmbedding struct {
	Model string
	Limit int
}

// VectorSearchOptions represents the options for circle-scoped item
// vector search.
type VectorSearchOptions struct {
	Vector []float32

	// CircleIDs is the caller's resolved visibility scope. Must be
	// non-empty: an empty scope is short-circuited by the engine before
	// the store is reached.
	CircleIDs []int32

	Limit int

	// MaxCandidates bounds the candidate set for drivers that rank in
	// the application layer (sqlite). Ignored by pgvector.
	MaxCandidates int
}

// Validate validates the VectorSearchOptions.
func (o *VectorSearchOptions) Validate() error {
	if len(o.Vector) == 0 {
		return errors.New("vector cannot be empty")
	}
	if len(o.CircleIDs) == 0 {
		return errors.New("circle scope cannot be empty")
	}
	if o.Limit < 0 {
		return errors.Errorf("limit cannot be negative: %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = 20 // Default limit
	}
	if o.Limit > 1000 {
		return errors.Errorf("limit too large (max 1000): %d", o.Limit)
	}
	return nil
}
