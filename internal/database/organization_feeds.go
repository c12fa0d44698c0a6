package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bazaar/internal/domain"
)

// AddOrganizationFeed registers feedURL for the organization. A URL is
// registered once: registering it again only refreshes its title and keeps
// the organization it was first registered for.
func (d *Database) AddOrganizationFeed(
	ctx context.Context,
	organizationID int64,
	feedURL string,
	feedTitle string,
) (domain.OrganizationFeed, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return domain.OrganizationFeed{}, errors.New("feed URL is empty")
	}

	feedTitle = strings.TrimSpace(feedTitle)
	if feedTitle == "" {
		feedTitle = feedURL
	}

	query := `insert into organization_feeds (organization_id, url, title)
	values (?, ?, ?)
	on conflict (url) do update
	set title = excluded.title
	returning id, organization_id, url, title`

	var f domain.OrganizationFeed
	err := d.db.QueryRowContext(ctx, query, organizationID, feedURL, feedTitle).
		Scan(&f.ID, &f.OrganizationID, &f.URL, &f.Title)
	if err != nil {
		return domain.OrganizationFeed{}, fmt.Errorf("upsert organization feed: %w", err)
	}

	return f, nil
}

// OrganizationFeedByURL reports false when feedURL is not registered.
func (d *Database) OrganizationFeedByURL(ctx context.Context, feedURL string) (domain.OrganizationFeed, bool, error) {
	var f domain.OrganizationFeed
	err := d.db.QueryRowContext(ctx,
		"select id, organization_id, url, title from organization_feeds where url = ?",
		strings.TrimSpace(feedURL),
	).Scan(&f.ID, &f.OrganizationID, &f.URL, &f.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OrganizationFeed{}, false, nil
	}

	if err != nil {
		return domain.OrganizationFeed{}, false, fmt.Errorf("select organization feed: %w", err)
	}

	return f, true, nil
}

func (d *Database) UpdateOrganizationFeedTitle(ctx context.Context, feedID int64, feedTitle string) error {
	feedTitle = strings.TrimSpace(feedTitle)
	if feedTitle == "" {
		return errors.New("feed title is empty")
	}

	_, err := d.db.ExecContext(ctx, "update organization_feeds set title = ? where id = ?", feedTitle, feedID)

	return err
}

func (d *Database) OrganizationFeeds(ctx context.Context) ([]domain.OrganizationFeed, error) {
	rows, err := d.db.QueryContext(ctx,
		"select id, organization_id, url, title from organization_feeds order by id")
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "OrganizationFeeds")

	var feeds []domain.OrganizationFeed
	for rows.Next() {
		var f domain.OrganizationFeed
		if err = rows.Scan(&f.ID, &f.OrganizationID, &f.URL, &f.Title); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		f.URL = strings.TrimSpace(f.URL)
		f.Title = strings.TrimSpace(f.Title)
		feeds = append(feeds, f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return feeds, nil
}

// ClaimItem marks a feed item as being imported. It reports false when the
// item was claimed before.
func (d *Database) ClaimItem(ctx context.Context, feedID int64, itemKey string) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		"insert or ignore into imported_items (feed_id, item_key, imported_at) values (?, ?, ?)",
		feedID, itemKey, toDB(time.Now()))
	if err != nil {
		return false, fmt.Errorf("insert imported item: %w", err)
	}

	claimed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return claimed != 0, nil
}

func (d *Database) CompleteItem(ctx context.Context, feedID int64, itemKey string, postID int64) error {
	_, err := d.db.ExecContext(ctx,
		"update imported_items set post_id = ? where feed_id = ? and item_key = ?",
		postID, feedID, itemKey)

	return err
}

// ReleaseItem drops a claim so the item is retried on the next import.
func (d *Database) ReleaseItem(ctx context.Context, feedID int64, itemKey string) error {
	_, err := d.db.ExecContext(ctx,
		"delete from imported_items where feed_id = ? and item_key = ? and post_id is null",
		feedID, itemKey)

	return err
}
