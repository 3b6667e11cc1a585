package postgres

import (
	"context"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/circleshare/circleshare/store"
)

// ListCircles performs a batched display-data lookup for enrichment.
func (d *DB) ListCircles(ctx context.Context, ids []int32) ([]*store.Circle, error) {
	if len(ids) == 0 {
		return []*store.Circle{}, nil
	}

	query := `SELECT id, name FROM circle WHERE id = ANY(` + placeholder(1) + `)`
	rows, err := d.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list circles")
	}
	defer rows.Close()

	list := []*store.Circle{}
	for rows.Next() {
		var circle store.Circle
		if err := rows.Scan(&circle.ID, &circle.Name); err != nil {
			return nil, errors.Wrap(err, "failed to scan circle")
		}
		list = append(list, &circle)
	}
	return list, rows.Err()
}

// ListCircleMemberships lists circle memberships. This table is owned by
// the membership collaborator; the driver reads it only.
func (d *DB) ListCircleMemberships(ctx context.Context, find *store.FindCircleMembership) ([]*store.CircleMembership, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.CircleID != nil {
		where, args = append(where, "circle_id = "+placeholder(len(args)+1)), append(args, *find.CircleID)
	}
	if find.ActiveOnly {
		where = append(where, "active = TRUE")
	}

	query := `
		SELECT user_id, circle_id, active
		FROM circle_member
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY circle_id
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list circle memberships")
	}
	defer rows.Close()

	list := []*store.CircleMembership{}
	for rows.Next() {
		var membership store.CircleMembership
		if err := rows.Scan(&membership.UserID, &membership.CircleID, &membership.Active); err != nil {
			return nil, errors.Wrap(err, "failed to scan circle membership")
		}
		list = append(list, &membership)
	}
	return list, rows.Err()
}
