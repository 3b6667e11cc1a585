package postgres

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Migrate creates the schema when it does not exist yet. The vector column
// dimension is fixed per deployment; pgvector maintains the ANN index over
// it, there is no separate index build step.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS app_user (
			id SERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			nickname TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS circle (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS circle_member (
			user_id INTEGER NOT NULL,
			circle_id INTEGER NOT NULL REFERENCES circle (id) ON DELETE CASCADE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (user_id, circle_id)
		)`,
		`CREATE TABLE IF NOT EXISTS item (
			id SERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			categories TEXT NOT NULL DEFAULT '[]',
			tags TEXT NOT NULL DEFAULT '[]',
			image_ref TEXT NOT NULL DEFAULT '',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS item_circle (
			item_id INTEGER NOT NULL REFERENCES item (id) ON DELETE CASCADE,
			circle_id INTEGER NOT NULL,
			PRIMARY KEY (item_id, circle_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS item_embedding (
			id SERIAL PRIMARY KEY,
			item_id INTEGER NOT NULL REFERENCES item (id) ON DELETE CASCADE,
			model TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL,
			UNIQUE (item_id, model)
		)`, d.dim),
		`CREATE INDEX IF NOT EXISTS idx_item_circle_circle_id ON item_circle (circle_id)`,
		`CREATE INDEX IF NOT EXISTS idx_circle_member_user_id ON circle_member (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_item_embedding_cosine
			ON item_embedding USING hnsw (embedding vector_cosine_ops)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute migration: %.60s", stmt)
		}
	}
	return nil
}
