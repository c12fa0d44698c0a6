package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bazaar/internal/domain"
)

// UpsertProfile creates the profile or refreshes its display fields.
func (d *Database) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	query := `insert into profiles (id, display_name, username, created_at)
	values (?, ?, ?, ?)
	on conflict (id) do update
	set display_name = excluded.display_name,
	username = excluded.username`

	_, err := d.db.ExecContext(ctx, query,
		profile.ID,
		strings.TrimSpace(profile.DisplayName),
		strings.TrimSpace(profile.Username),
		toDB(time.Now()))

	return err
}

func (d *Database) CreateOrganization(ctx context.Context, name string) (domain.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Organization{}, errors.New("organization name is empty")
	}

	var org domain.Organization
	err := d.db.QueryRowContext(ctx,
		"insert into organizations (name, created_at) values (?, ?) returning id, name",
		name, toDB(time.Now()),
	).Scan(&org.ID, &org.Name)
	if err != nil {
		return domain.Organization{}, fmt.Errorf("insert organization: %w", err)
	}

	return org, nil
}

func (d *Database) CreateCommunity(ctx context.Context, name string) (domain.Community, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Community{}, errors.New("community name is empty")
	}

	var c domain.Community
	err := d.db.QueryRowContext(ctx,
		"insert into communities (name, created_at) values (?, ?) returning id, name",
		name, toDB(time.Now()),
	).Scan(&c.ID, &c.Name)
	if err != nil {
		return domain.Community{}, fmt.Errorf("insert community: %w", err)
	}

	return c, nil
}

func (d *Database) CreateTopic(ctx context.Context, communityID *int64, title string) (domain.Topic, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Topic{}, errors.New("topic title is empty")
	}

	var t domain.Topic
	err := d.db.QueryRowContext(ctx,
		"insert into topics (community_id, title, created_at) values (?, ?, ?) returning id, title",
		idArg(communityID), title, toDB(time.Now()),
	).Scan(&t.ID, &t.Title)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("insert topic: %w", err)
	}

	return t, nil
}

func (d *Database) JoinCommunity(ctx context.Context, profileID int64, communityID int64) error {
	query := `insert or ignore into memberships (profile_id, community_id, created_at)
	values (?, ?, ?)`

	_, err := d.db.ExecContext(ctx, query, profileID, communityID, toDB(time.Now()))

	return err
}

func (d *Database) LeaveCommunity(ctx context.Context, profileID int64, communityID int64) error {
	query := "delete from memberships where profile_id = ? and community_id = ?"

	_, err := d.db.ExecContext(ctx, query, profileID, communityID)

	return err
}
