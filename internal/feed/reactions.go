package feed

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"bazaar/internal/domain"
)

// ReactionToggler likes and unlikes stored posts for one viewer. The stored
// counter is updated before the repository call returns, so concurrent
// toggles on one post may interleave; the counter never goes below zero.
type ReactionToggler struct {
	reactions ReactionRepository
	store     *Store
	viewerID  int64
	log       *slog.Logger
}

func NewReactionToggler(
	reactions ReactionRepository,
	store *Store,
	viewerID int64,
	log *slog.Logger,
) *ReactionToggler {
	return &ReactionToggler{
		reactions: reactions,
		store:     store,
		viewerID:  viewerID,
		log:       log,
	}
}

// Toggle flips the viewer's like on postID and returns the resulting local
// state. If the repository rejects the change, the local change is undone.
func (t *ReactionToggler) Toggle(ctx context.Context, postID int64) (bool, int64, error) {
	if t.viewerID == 0 {
		return false, 0, ErrUnauthenticated
	}

	stored, ok := t.store.Get(postID)
	if !ok {
		return false, 0, ErrPostNotFound
	}

	liked := stored.Liked()
	action := "add"
	if liked {
		action = "remove"
	}

	liked, likes := t.apply(postID, !liked)

	var err error
	if action == "remove" {
		err = t.reactions.RemoveReaction(ctx, t.viewerID, postID, domain.ReactionLike)
	} else {
		err = t.reactions.AddReaction(ctx, t.viewerID, postID, domain.ReactionLike)
	}

	if err != nil {
		liked, likes = t.apply(postID, action == "remove")

		t.log.ErrorContext(ctx, "Failed to toggle reaction, local change is reverted",
			"error", err,
			"postID", postID,
			"viewerID", t.viewerID,
			"action", action)

		return liked, likes, fmt.Errorf("%s reaction: %w", action, err)
	}

	reactionToggles.WithLabelValues(action).Inc()

	return liked, likes, nil
}

// apply sets the stored like state of postID and adjusts its counter.
func (t *ReactionToggler) apply(postID int64, like bool) (bool, int64) {
	var liked bool
	var likes int64

	t.store.Update(postID, func(p *domain.DecoratedPost) {
		switch {
		case like && !p.Liked():
			p.OwnReactions = append(slices.Clip(p.OwnReactions), domain.Reaction{
				ViewerID:  t.viewerID,
				PostID:    postID,
				Kind:      domain.ReactionLike,
				CreatedAt: time.Now(),
			})
			p.LikeCount++
		case !like && p.Liked():
			kept := make([]domain.Reaction, 0, len(p.OwnReactions))
			for _, r := range p.OwnReactions {
				if r.Kind != domain.ReactionLike {
					kept = append(kept, r)
				}
			}
			p.OwnReactions = kept
			p.LikeCount = max(p.LikeCount-1, 0)
		}

		liked = p.Liked()
		likes = p.LikeCount
	})

	return liked, likes
}
