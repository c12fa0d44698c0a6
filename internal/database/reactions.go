package database

import (
	"context"
	"fmt"
	"time"

	"bazaar/internal/domain"
)

func (d *Database) OwnReactionsByPostIDs(
	ctx context.Context,
	viewerID int64,
	postIDs []int64,
) (map[int64][]domain.Reaction, error) {
	placeholders, args := inClause(postIDs)
	query := "select post_id, kind, created_at from reactions where viewer_id = ? and post_id in (" +
		placeholders + ") order by post_id, created_at"

	rows, err := d.db.QueryContext(ctx, query, append([]any{viewerID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "OwnReactionsByPostIDs")

	out := make(map[int64][]domain.Reaction)
	for rows.Next() {
		r := domain.Reaction{ViewerID: viewerID}
		var kind string
		var createdAt int64
		if err = rows.Scan(&r.PostID, &kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		r.Kind = domain.ReactionKind(kind)
		r.CreatedAt = fromDB(createdAt)
		out[r.PostID] = append(out[r.PostID], r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

// AddReaction records the reaction and bumps the post's like counter. Adding
// an existing reaction changes nothing.
func (d *Database) AddReaction(
	ctx context.Context,
	viewerID int64,
	postID int64,
	kind domain.ReactionKind,
) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer d.rollback(ctx, tx, "AddReaction")

	res, err := tx.ExecContext(ctx,
		"insert or ignore into reactions (viewer_id, post_id, kind, created_at) values (?, ?, ?, ?)",
		viewerID, postID, string(kind), toDB(time.Now()))
	if err != nil {
		return fmt.Errorf("insert reaction: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if inserted != 0 && kind == domain.ReactionLike {
		if _, err = tx.ExecContext(ctx,
			"update posts set like_count = like_count + 1 where id = ?", postID,
		); err != nil {
			return fmt.Errorf("increment like count: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// RemoveReaction deletes the reaction and decrements the post's like
// counter, never below zero.
func (d *Database) RemoveReaction(
	ctx context.Context,
	viewerID int64,
	postID int64,
	kind domain.ReactionKind,
) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer d.rollback(ctx, tx, "RemoveReaction")

	res, err := tx.ExecContext(ctx,
		"delete from reactions where viewer_id = ? and post_id = ? and kind = ?",
		viewerID, postID, string(kind))
	if err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if deleted != 0 && kind == domain.ReactionLike {
		if _, err = tx.ExecContext(ctx,
			"update posts set like_count = max(like_count - 1, 0) where id = ?", postID,
		); err != nil {
			return fmt.Errorf("decrement like count: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
