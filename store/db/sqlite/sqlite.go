// Package sqlite implements the store driver on SQLite. Vectors are stored
// as little-endian float32 BLOBs and similarity is computed in the
// application layer, the documented fallback when no vector extension is
// available.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/circleshare/circleshare/internal/profile"
)

// DB is the SQLite implementation of store.Driver.
type DB struct {
	db      *sql.DB
	profile *profile.Profile

	dim   int
	model string
}

// NewDB opens a SQLite database specified by its DSN.
func NewDB(profile *profile.Profile) (*DB, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("sqlite", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return &DB{
		db:      db,
		profile: profile,
		dim:     profile.EmbeddingDimensions,
		model:   profile.EmbeddingModel,
	}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema when it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS app_user (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			nickname TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS circle (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS circle_member (
			user_id INTEGER NOT NULL,
			circle_id INTEGER NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (user_id, circle_id)
		)`,
		`CREATE TABLE IF NOT EXISTS item (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			categories TEXT NOT NULL DEFAULT '[]',
			tags TEXT NOT NULL DEFAULT '[]',
			image_ref TEXT NOT NULL DEFAULT '',
			created_ts INTEGER NOT NULL,
			updated_ts INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS item_circle (
			item_id INTEGER NOT NULL,
			circle_id INTEGER NOT NULL,
			PRIMARY KEY (item_id, circle_id)
		)`,
		`CREATE TABLE IF NOT EXISTS item_embedding (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id INTEGER NOT NULL,
			model TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_ts INTEGER NOT NULL,
			updated_ts INTEGER NOT NULL,
			UNIQUE (item_id, model)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_item_circle_circle_id ON item_circle (circle_id)`,
		`CREATE INDEX IF NOT EXISTS idx_circle_member_user_id ON circle_member (user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute migration: %.60s", stmt)
		}
	}
	return nil
}
