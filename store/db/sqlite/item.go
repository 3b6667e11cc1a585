package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/circleshare/circleshare/store"
)

// inPlaceholders returns "?, ?, ..., ?" with n placeholders.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int32Args(ids []int32) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func marshalStringList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal string list")
	}
	return string(raw), nil
}

func unmarshalStringList(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	list := []string{}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal string list")
	}
	return list, nil
}

// CreateItem inserts an item and its circle associations in one transaction.
func (d *DB) CreateItem(ctx context.Context, create *store.CreateItem) (*store.Item, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}

	categories, err := marshalStringList(create.Categories)
	if err != nil {
		return nil, err
	}
	tags, err := marshalStringList(create.Tags)
	if err != nil {
		return nil, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	item := &store.Item{
		UID:         shortuuid.New(),
		OwnerID:     create.OwnerID,
		Name:        create.Name,
		Description: create.Description,
		Categories:  create.Categories,
		Tags:        create.Tags,
		ImageRef:    create.ImageRef,
		CreatedTs:   now,
		UpdatedTs:   now,
		CircleIDs:   create.CircleIDs,
	}

	stmt := `
		INSERT INTO item (uid, owner_id, name, description, categories, tags, image_ref, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, stmt,
		item.UID,
		item.OwnerID,
		item.Name,
		item.Description,
		categories,
		tags,
		item.ImageRef,
		item.CreatedTs,
		item.UpdatedTs,
	).Scan(&item.ID); err != nil {
		return nil, errors.Wrap(err, "failed to insert item")
	}

	for _, circleID := range create.CircleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO item_circle (item_id, circle_id) VALUES (?, ?)`,
			item.ID, circleID,
		); err != nil {
			return nil, errors.Wrap(err, "failed to insert item circle association")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}
	return item, nil
}

// UpdateItem applies the non-nil fields of update. When CircleIDs is
// non-nil the visibility set is replaced wholesale.
func (d *DB) UpdateItem(ctx context.Context, update *store.UpdateItem) (*store.Item, error) {
	set, args := []string{}, []any{}

	if update.Name != nil {
		set, args = append(set, "name = ?"), append(args, *update.Name)
	}
	if update.Description != nil {
		set, args = append(set, "description = ?"), append(args, *update.Description)
	}
	if update.Categories != nil {
		categories, err := marshalStringList(update.Categories)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "categories = ?"), append(args, categories)
	}
	if update.Tags != nil {
		tags, err := marshalStringList(update.Tags)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "tags = ?"), append(args, tags)
	}
	if update.ImageRef != nil {
		set, args = append(set, "image_ref = ?"), append(args, *update.ImageRef)
	}

	updatedTs := time.Now().Unix()
	if update.UpdatedTs != nil {
		updatedTs = *update.UpdatedTs
	}
	set, args = append(set, "updated_ts = ?"), append(args, updatedTs)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	args = append(args, update.ID)
	stmt := `
		UPDATE item
		SET ` + strings.Join(set, ", ") + `
		WHERE id = ?
		RETURNING id, uid, owner_id, name, description, categories, tags, image_ref, created_ts, updated_ts
	`
	item, err := scanItemRow(tx.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, err
	}

	if update.CircleIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM item_circle WHERE item_id = ?`, item.ID); err != nil {
			return nil, errors.Wrap(err, "failed to clear item circle associations")
		}
		for _, circleID := range update.CircleIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO item_circle (item_id, circle_id) VALUES (?, ?)`,
				item.ID, circleID,
			); err != nil {
				return nil, errors.Wrap(err, "failed to insert item circle association")
			}
		}
		item.CircleIDs = update.CircleIDs
	} else {
		rows, err := tx.QueryContext(ctx, `SELECT circle_id FROM item_circle WHERE item_id = ? ORDER BY circle_id`, item.ID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list item circle ids")
		}
		item.CircleIDs, err = scanCircleIDs(rows)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}
	return item, nil
}

// ListItems lists items matching the find condition, newest first, with
// their circle associations populated.
func (d *DB) ListItems(ctx context.Context, find *store.FindItem) ([]*store.Item, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "i.id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "i.uid = ?"), append(args, *find.UID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "i.owner_id = ?"), append(args, *find.OwnerID)
	}
	if len(find.IDs) > 0 {
		where = append(where, "i.id IN ("+inPlaceholders(len(find.IDs))+")")
		args = append(args, int32Args(find.IDs)...)
	}
	if len(find.CircleIDs) > 0 {
		where = append(where, `EXISTS (
			SELECT 1 FROM item_circle ic
			WHERE ic.item_id = i.id AND ic.circle_id IN (`+inPlaceholders(len(find.CircleIDs))+`)
		)`)
		args = append(args, int32Args(find.CircleIDs)...)
	}

	query := `
		SELECT i.id, i.uid, i.owner_id, i.name, i.description, i.categories, i.tags, i.image_ref, i.created_ts, i.updated_ts
		FROM item i
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY i.created_ts DESC
	`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list items")
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := d.attachCircleIDs(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// attachCircleIDs loads the circle associations for a batch of items in
// one query.
func (d *DB) attachCircleIDs(ctx context.Context, items []*store.Item) error {
	if len(items) == 0 {
		return nil
	}

	itemIDs := make([]int32, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT item_id, circle_id FROM item_circle WHERE item_id IN (`+inPlaceholders(len(itemIDs))+`) ORDER BY item_id, circle_id`,
		int32Args(itemIDs)...)
	if err != nil {
		return errors.Wrap(err, "failed to list item circle ids")
	}
	defer rows.Close()

	byItem := make(map[int32][]int32, len(items))
	for rows.Next() {
		var itemID, circleID int32
		if err := rows.Scan(&itemID, &circleID); err != nil {
			return errors.Wrap(err, "failed to scan item circle association")
		}
		byItem[itemID] = append(byItem[itemID], circleID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, item := range items {
		item.CircleIDs = byItem[item.ID]
		if item.CircleIDs == nil {
			item.CircleIDs = []int32{}
		}
	}
	return nil
}

// DeleteItem removes the item together with its circle associations and
// embedding. SQLite has no foreign keys enabled here, so the cascade is
// explicit and transactional.
func (d *DB) DeleteItem(ctx context.Context, delete *store.DeleteItem) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM item WHERE id = ?`, delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete item")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Errorf("item %d not found", delete.ID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_circle WHERE item_id = ?`, delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete item circle associations")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_embedding WHERE item_id = ?`, delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete item embedding")
	}

	return tx.Commit()
}

// ListOwners performs a batched display-data lookup for enrichment.
func (d *DB) ListOwners(ctx context.Context, ids []int32) ([]*store.Owner, error) {
	if len(ids) == 0 {
		return []*store.Owner{}, nil
	}

	query := `SELECT id, username, nickname, avatar_url FROM app_user WHERE id IN (` + inPlaceholders(len(ids)) + `)`
	rows, err := d.db.QueryContext(ctx, query, int32Args(ids)...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list owners")
	}
	defer rows.Close()

	list := []*store.Owner{}
	for rows.Next() {
		var owner store.Owner
		if err := rows.Scan(&owner.ID, &owner.Username, &owner.Nickname, &owner.AvatarURL); err != nil {
			return nil, errors.Wrap(err, "failed to scan owner")
		}
		list = append(list, &owner)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItemRow(row rowScanner) (*store.Item, error) {
	var item store.Item
	var categories, tags string
	if err := row.Scan(
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
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("item not found")
		}
		return nil, errors.Wrap(err, "failed to scan item")
	}

	var err error
	if item.Categories, err = unmarshalStringList(categories); err != nil {
		return nil, err
	}
	if item.Tags, err = unmarshalStringList(tags); err != nil {
		return nil, err
	}
	return &item, nil
}

func scanCircleIDs(rows *sql.Rows) ([]int32, error) {
	defer rows.Close()
	ids := []int32{}
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan circle id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
