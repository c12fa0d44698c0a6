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

const postColumns = `id, community_id, topic_id, actor_kind, actor_id, content, category, region,
	like_count, comment_count, share_count, visibility, pinned, created_at, updated_at, deleted_at`

func scanPost(scan func(dest ...any) error) (domain.Post, error) {
	var (
		p           domain.Post
		communityID sql.NullInt64
		topicID     sql.NullInt64
		actorKind   string
		visibility  string
		createdAt   int64
		updatedAt   int64
		deletedAt   sql.NullInt64
	)

	if err := scan(
		&p.ID,
		&communityID,
		&topicID,
		&actorKind,
		&p.Actor.ID,
		&p.Content,
		&p.Category,
		&p.Region,
		&p.LikeCount,
		&p.CommentCount,
		&p.ShareCount,
		&visibility,
		&p.Pinned,
		&createdAt,
		&updatedAt,
		&deletedAt,
	); err != nil {
		return domain.Post{}, err
	}

	p.CommunityID = nullableID(communityID)
	p.TopicID = nullableID(topicID)
	p.Actor.Kind = domain.ActorKind(actorKind)
	p.Visibility = domain.Visibility(visibility)
	p.CreatedAt = fromDB(createdAt)
	p.UpdatedAt = fromDB(updatedAt)
	p.DeletedAt = nullableTime(deletedAt)

	return p, nil
}

// FetchPage returns public, non-deleted posts newest first. With a cursor
// only posts created strictly before it are returned.
func (d *Database) FetchPage(
	ctx context.Context,
	filter domain.Filter,
	cursor *time.Time,
	limit int,
) ([]domain.Post, error) {
	where := []string{"deleted_at is null", "visibility = ?"}
	args := []any{string(domain.VisibilityPublic)}

	if filter.WithoutCommunity {
		where = append(where, "community_id is null")
	}

	if filter.CommunityID != nil {
		where = append(where, "community_id = ?")
		args = append(args, *filter.CommunityID)
	}

	if filter.TopicID != nil {
		where = append(where, "topic_id = ?")
		args = append(args, *filter.TopicID)
	}

	if category := strings.TrimSpace(filter.Category); category != "" {
		where = append(where, "category = ?")
		args = append(args, category)
	}

	if region := strings.TrimSpace(filter.Region); region != "" {
		where = append(where, "region = ?")
		args = append(args, region)
	}

	if cursor != nil {
		where = append(where, "created_at < ?")
		args = append(args, toDB(*cursor))
	}

	query := "select " + postColumns + " from posts where " + strings.Join(where, " and ") +
		" order by created_at desc, id desc limit ?"
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "FetchPage")

	posts := make([]domain.Post, 0, limit)
	for rows.Next() {
		p, scanErr := scanPost(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan row: %w", scanErr)
		}

		posts = append(posts, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return posts, nil
}

func (d *Database) CreatePost(ctx context.Context, draft domain.Draft) (domain.Post, error) {
	content := strings.TrimSpace(draft.Content)
	if content == "" {
		return domain.Post{}, errors.New("post content is empty")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Post{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer d.rollback(ctx, tx, "CreatePost")

	now := toDB(time.Now())

	query := `insert into posts
	(community_id, topic_id, actor_kind, actor_id, content, category, region, visibility, created_at, updated_at)
	values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	returning ` + postColumns

	post, err := scanPost(tx.QueryRowContext(ctx, query,
		idArg(draft.CommunityID),
		idArg(draft.TopicID),
		string(draft.Actor.Kind),
		draft.Actor.ID,
		content,
		strings.TrimSpace(draft.Category),
		strings.TrimSpace(draft.Region),
		string(domain.VisibilityPublic),
		now,
		now,
	).Scan)
	if err != nil {
		return domain.Post{}, fmt.Errorf("insert post: %w", err)
	}

	for i, m := range draft.Media {
		if _, err = tx.ExecContext(ctx,
			"insert into media (post_id, kind, url, position) values (?, ?, ?, ?)",
			post.ID, string(m.Kind), strings.TrimSpace(m.URL), i,
		); err != nil {
			return domain.Post{}, fmt.Errorf("insert media: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Post{}, fmt.Errorf("commit transaction: %w", err)
	}

	return post, nil
}

// DeletePost soft-deletes a post so it no longer appears in any page.
func (d *Database) DeletePost(ctx context.Context, postID int64) error {
	now := toDB(time.Now())

	_, err := d.db.ExecContext(ctx,
		"update posts set deleted_at = ?, updated_at = ? where id = ? and deleted_at is null",
		now, now, postID)

	return err
}

func (d *Database) MediaByPostIDs(ctx context.Context, postIDs []int64) (map[int64][]domain.Media, error) {
	placeholders, args := inClause(postIDs)
	query := "select id, post_id, kind, url, position from media where post_id in (" + placeholders + ")" +
		" order by post_id, position, id"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "MediaByPostIDs")

	out := make(map[int64][]domain.Media, len(postIDs))
	for rows.Next() {
		var m domain.Media
		var kind string
		if err = rows.Scan(&m.ID, &m.PostID, &kind, &m.URL, &m.Position); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		m.Kind = domain.MediaKind(kind)
		out[m.PostID] = append(out[m.PostID], m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}
