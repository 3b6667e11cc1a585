package sqlite

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/circleshare/circleshare/store"
)

// vectorToBLOB converts a []float32 to a little-endian BLOB, validating
// the configured dimension.
func (d *DB) vectorToBLOB(vec []float32) ([]byte, error) {
	if len(vec) != d.dim {
		return nil, errors.Errorf("invalid vector dimension: got %d, want %d", len(vec), d.dim)
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf, nil
}

// blobToVector is the inverse of vectorToBLOB.
func (d *DB) blobToVector(blob []byte) ([]float32, error) {
	if len(blob) != d.dim*4 {
		return nil, errors.Errorf("invalid BLOB length: got %d, want %d", len(blob), d.dim*4)
	}
	vec := make([]float32, d.dim)
	for i := 0; i < d.dim; i++ {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

// UpsertItemEmbedding inserts or overwrites an item embedding in place.
func (d *DB) UpsertItemEmbedding(ctx context.Context, embedding *store.ItemEmbedding) (*store.ItemEmbedding, error) {
	blob, err := d.vectorToBLOB(embedding.Embedding)
	if err != nil {
		return nil, err
	}

	if embedding.CreatedTs == 0 {
		embedding.CreatedTs = time.Now().Unix()
	}
	if embedding.UpdatedTs == 0 {
		embedding.UpdatedTs = embedding.CreatedTs
	}

	stmt := `
		INSERT INTO item_embedding (item_id, embedding, model, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (item_id, model) DO UPDATE SET
			embedding = excluded.embedding,
			updated_ts = excluded.updated_ts
		RETURNING id, created_ts, updated_ts
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		embedding.ItemID,
		blob,
		embedding.Model,
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert item embedding")
	}
	return embedding, nil
}

// DeleteItemEmbedding deletes an item embedding.
func (d *DB) DeleteItemEmbedding(ctx context.Context, itemID int32) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM item_embedding WHERE item_id = ?`, itemID)
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
// specified model.
func (d *DB) FindItemsWithoutEmbedding(ctx context.Context, find *store.FindItemsWithoutEmbedding) ([]*store.Item, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT i.id, i.uid, i.owner_id, i.name, i.description, i.categories, i.tags, i.image_ref, i.created_ts, i.updated_ts
		FROM item i
		LEFT JOIN item_embedding e ON i.id = e.item_id AND e.model = ?
		WHERE e.id IS NULL
			AND LENGTH(i.image_ref) > 0
		ORDER BY i.created_ts DESC
		LIMIT ?
	`
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

// ScopedVectorSearch performs circle-scoped vector similarity search with
// application-layer cosine ranking (O(n) over the candidate set). The
// EXISTS predicate yields one row per item regardless of how many of its
// circles intersect the scope; items without a stored embedding never join.
func (d *DB) ScopedVectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ItemWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	// Bound the candidate set loaded into memory, newest first.
	candidateLimit := opts.MaxCandidates
	if candidateLimit <= 0 {
		candidateLimit = limit * 5
	}
	if candidateLimit > 500 {
		candidateLimit = 500
	}
	if candidateLimit < limit {
		candidateLimit = limit
	}

	query := `
		SELECT
			i.id, i.uid, i.owner_id, i.name, i.description, i.categories, i.tags, i.image_ref, i.created_ts, i.updated_ts,
			e.embedding
		FROM item i
		INNER JOIN item_embedding e ON i.id = e.item_id AND e.model = ?
		WHERE EXISTS (
			SELECT 1 FROM item_circle ic
			WHERE ic.item_id = i.id AND ic.circle_id IN (` + inPlaceholders(len(opts.CircleIDs)) + `)
		)
		ORDER BY i.created_ts DESC
		LIMIT ?
	`
	args := []any{d.model}
	args = append(args, int32Args(opts.CircleIDs)...)
	args = append(args, candidateLimit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scoped vector search")
	}
	defer rows.Close()

	type candidate struct {
		item      *store.Item
		embedding []float32
	}
	candidates := []candidate{}

	for rows.Next() {
		var item store.Item
		var categories, tags string
		var blob []byte

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
			&blob,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan scoped vector search result")
		}

		if item.Categories, err = unmarshalStringList(categories); err != nil {
			return nil, err
		}
		if item.Tags, err = unmarshalStringList(tags); err != nil {
			return nil, err
		}

		embedding, err := d.blobToVector(blob)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode embedding BLOB")
		}
		candidates = append(candidates, candidate{item: &item, embedding: embedding})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]*store.ItemWithScore, 0, len(candidates))
	for _, cand := range candidates {
		results = append(results, &store.ItemWithScore{
			Item:  cand.item,
			Score: cosineSimilarity(opts.Vector, cand.embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.CreatedTs > results[j].Item.CreatedTs
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineSimilarity computes cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct float32
	var normA float32
	var normB float32

	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
