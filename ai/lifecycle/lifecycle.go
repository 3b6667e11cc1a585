// Package lifecycle keeps stored item embeddings in step with item writes.
// Embedding maintenance is best-effort: an item create or update must
// never fail because the provider was down, so callers invoke the
// refresher after the item row is persisted and treat errors as
// observability events.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/circleshare/circleshare/ai"
	"github.com/circleshare/circleshare/store"
)

// Store is the slice of the store the refresher needs.
type Store interface {
	UpsertItemEmbedding(ctx context.Context, embedding *store.ItemEmbedding) (*store.ItemEmbedding, error)
	DeleteItemEmbedding(ctx context.Context, itemID int32) error
	FindItemsWithoutEmbedding(ctx context.Context, find *store.FindItemsWithoutEmbedding) ([]*store.Item, error)
}

// ImagePreparer normalizes an image reference into provider-ready input.
type ImagePreparer interface {
	Prepare(ctx context.Context, imageRef string) (string, error)
}

// Refresher recomputes item embeddings when images change and backfills
// items whose embedding is missing.
type Refresher struct {
	store    Store
	embedder ai.EmbeddingService
	preparer ImagePreparer
	model    string
	sem      *semaphore.Weighted
}

// NewRefresher creates a Refresher. maxConcurrent bounds simultaneous
// provider calls during backfill.
func NewRefresher(s Store, embedder ai.EmbeddingService, preparer ImagePreparer, model string, maxConcurrent int64) *Refresher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Refresher{
		store:    s,
		embedder: embedder,
		preparer: preparer,
		model:    model,
		sem:      semaphore.NewWeighted(maxConcurrent),
	}
}

// RefreshItem recomputes the embedding for item from its current image and
// overwrites any stored vector in place. An item without an image has its
// embedding removed so it stops participating in similarity ranking.
func (r *Refresher) RefreshItem(ctx context.Context, item *store.Item) error {
	if item.ImageRef == "" {
		if err := r.store.DeleteItemEmbedding(ctx, item.ID); err != nil {
			// Nothing stored is the common case for image-less items.
			slog.Debug("no embedding to remove", slog.Int("item_id", int(item.ID)))
		}
		return nil
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "refresh canceled")
	}
	defer r.sem.Release(1)

	input, err := r.preparer.Prepare(ctx, item.ImageRef)
	if err != nil {
		return ai.NewEmbeddingError("image preparation failed", err)
	}
	vector, err := r.embedder.EmbedImage(ctx, input)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	if _, err := r.store.UpsertItemEmbedding(ctx, &store.ItemEmbedding{
		ItemID:    item.ID,
		Model:     r.model,
		Embedding: vector,
		CreatedTs: now,
		UpdatedTs: now,
	}); err != nil {
		return errors.Wrap(err, "failed to store refreshed embedding")
	}
	return nil
}

// RefreshAsync runs RefreshItem detached from the request that triggered
// it, so a slow provider never stretches the item write. Failures are
// logged; the item simply stays out of similarity ranking until the next
// image change or backfill.
func (r *Refresher) RefreshAsync(item *store.Item) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := r.RefreshItem(ctx, item); err != nil {
			slog.Warn("embedding refresh failed",
				slog.Int("item_id", int(item.ID)),
				slog.String("error", err.Error()))
		}
	}()
}

// Backfill embeds up to batchSize items that have an image but no stored
// vector, returning how many embeddings were written. Per-item failures
// are logged and skipped so one bad image cannot stall the sweep.
func (r *Refresher) Backfill(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	items, err := r.store.FindItemsWithoutEmbedding(ctx, &store.FindItemsWithoutEmbedding{
		Model: r.model,
		Limit: batchSize,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to list items without embedding")
	}

	done := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := r.RefreshItem(ctx, item); err != nil {
			slog.Warn("backfill skipped item",
				slog.Int("item_id", int(item.ID)),
				slog.String("error", err.Error()))
			continue
		}
		done++
	}
	return done, nil
}
