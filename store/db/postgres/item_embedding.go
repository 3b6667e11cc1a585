package postgres

import (
	"context"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/circleshare/circleshare/store"
)

// UpsertItemEmbedding inserts or overwrites an item embedding in place.
// The old value is fully replaced in one statement, so a search observes
// either the previous vector or the new one, never a mix.
func (d *DB) UpsertItemEmbedding(ctx context.Context, embedding *store.ItemEmbedding) (*store.ItemEmbedding, error) {
	if len(embedding.Embedding) != d.dim {
		return nil, errors.Errorf("invalid vector dimension: got %d, want %d", len(embedding.Embedding), d.dim)
	}

	stmt := `
		INSERT INTO item_embedding (item_id, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (item_id, model)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`

	vector := pgvector.NewVector(embedding.Embedding)
	err := d.db.QueryRowContext(ctx, stmt,
		embedding.ItemID,
		vector,
		embedding.Model,
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert item embedding")
	}
	return embedding, nil
}

// DeleteItemEmbedding deletes an item embedding.
func (d *DB) DeleteItemEmbedding(ctx context.Context, itemID int32) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM item_embedding WHERE item_id = `+placeholder(1), itemID)
	if err != nil {
		return errors.Wrap(err, "failed to delete item embedding")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Errorf("item embedding with item_id %d not found", itemID)
	}
	return nil
}

// FindItemsWithoutEmbedding finds items that don't have embeddings for the
// specified model. Used by the write-path backfill.
func (d *DB) FindItemsWithoutEmbedding(ctx context.Context, find *store.FindItemsWithoutEmbedding) ([]*store.Item, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT i.id, i.uid, i.owner_id, i.name, i.description, i.categories, i.tags, i.image_ref, i.created_ts, i.updated_ts
		FROM item i
		LEFT JOIN item_embedding e ON i.id = e.item_id AND e.model = ` + placeholder(1) + `
		WHERE e.id IS NULL
			AND LENGTH(i.image_ref) > 0
		ORDER BY i.created_ts DESC
		LIMIT ` + placeholder(2)

	rows, err := d.db.QueryContext(ctx, query, find.Model, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find items without embedding")
	}
	defer rows.Close()

	list := []*store.Item{}
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	return list, rows.Err()
}

// ScopedVectorSearch performs circle-scoped vector similarity search using
// pgvector. The <=> operator computes cosine distance (1 - cosine
// similarity), so ordering by distance ASC yields most similar first. The
// EXISTS predicate yields exactly one row per item regardless of how many
// of its circles intersect the scope, and items without a stored embedding
// never join.
func (d *DB) ScopedVectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ItemWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			i.id, i.uid, i.owner_id, i.name, i.description, i.categories, i.tags, i.image_ref, i.created_ts, i.updated_ts,
			1 - (e.embedding <=> ` + placeholder(1) + `) AS score
		FROM item i
		INNER JOIN item_embedding e ON i.id = e.item_id AND e.model = ` + placeholder(2) + `
		WHERE EXISTS (
			SELECT 1 FROM item_circle ic
			WHERE ic.item_id = i.id AND ic.circle_id = ANY(` + placeholder(3) + `)
		)
		ORDER BY e.embedding <=> ` + placeholder(4) + `, i.created_ts DESC
		LIMIT ` + placeholder(5)

	vector := pgvector.NewVector(opts.Vector)
	rows, err := d.db.QueryContext(ctx, query, vector, d.model, pq.Array(opts.CircleIDs), vector, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scoped vector search")
	}
	defer rows.Close()

	results := []*store.ItemWithScore{}
	for rows.Next() {
		var result store.ItemWithScore
		var item store.Item
		var categories, tags string

		if err := rows.Scan(
			&item.ID,
			&item.UID,
			&item.OwnerID,
			&item.Name,
			&item.Description,
			&categories,
			&tags,
			&item.ImageRef,
			&item.CreatedTs,
			&item.UpdatedTs,
			&result.Score,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan scoped vector search result")
		}

		if item.Categories, err = unmarshalStringList(categories); err != nil {
			return nil, err
		}
		if item.Tags, err = unmarshalStringList(tags); err != nil {
			return nil, err
		}

		result.Item = &item
		results = append(results, &result)
	}
	return results, rows.Err()
}
