package database

import (
	"context"
	"database/sql"
	"fmt"

	"bazaar/internal/domain"
)

// queryByIDs runs query with "(%s)" replaced by an id placeholder list and
// collects one record per row keyed by the id scan returns.
func queryByIDs[V any](
	ctx context.Context,
	d *Database,
	operation string,
	query string,
	ids []int64,
	scan func(rows *sql.Rows) (int64, V, error),
) (map[int64]V, error) {
	placeholders, args := inClause(ids)

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(query, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, operation)

	out := make(map[int64]V, len(ids))
	for rows.Next() {
		id, v, scanErr := scan(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan row: %w", scanErr)
		}

		out[id] = v
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

func (d *Database) ProfilesByIDs(ctx context.Context, ids []int64) (map[int64]domain.Profile, error) {
	return queryByIDs(ctx, d, "ProfilesByIDs",
		"select id, display_name, username from profiles where id in (%s)",
		ids,
		func(rows *sql.Rows) (int64, domain.Profile, error) {
			var p domain.Profile
			err := rows.Scan(&p.ID, &p.DisplayName, &p.Username)
			return p.ID, p, err
		})
}

func (d *Database) OrganizationsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Organization, error) {
	return queryByIDs(ctx, d, "OrganizationsByIDs",
		"select id, name from organizations where id in (%s)",
		ids,
		func(rows *sql.Rows) (int64, domain.Organization, error) {
			var o domain.Organization
			err := rows.Scan(&o.ID, &o.Name)
			return o.ID, o, err
		})
}

func (d *Database) CommunitiesByIDs(ctx context.Context, ids []int64) (map[int64]domain.Community, error) {
	return queryByIDs(ctx, d, "CommunitiesByIDs",
		"select id, name from communities where id in (%s)",
		ids,
		func(rows *sql.Rows) (int64, domain.Community, error) {
			var c domain.Community
			err := rows.Scan(&c.ID, &c.Name)
			return c.ID, c, err
		})
}

func (d *Database) TopicsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Topic, error) {
	return queryByIDs(ctx, d, "TopicsByIDs",
		"select id, title from topics where id in (%s)",
		ids,
		func(rows *sql.Rows) (int64, domain.Topic, error) {
			var t domain.Topic
			err := rows.Scan(&t.ID, &t.Title)
			return t.ID, t, err
		})
}

func (d *Database) MembershipsFor(ctx context.Context, viewerID int64) (domain.MembershipSet, error) {
	rows, err := d.db.QueryContext(ctx,
		"select community_id from memberships where profile_id = ?", viewerID)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "MembershipsFor")

	set := domain.MembershipSet{}
	for rows.Next() {
		var communityID int64
		if err = rows.Scan(&communityID); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		set[communityID] = struct{}{}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return set, nil
}
