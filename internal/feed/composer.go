package feed

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"bazaar/internal/domain"

	"mvdan.cc/xurls/v2"
)

const maxLinkAttachments = 4

// Reloader refreshes a feed with its current filter.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Composer validates and submits drafts. New posts reach the feed through a
// regular reload, never by inserting into the store directly.
type Composer struct {
	posts  PostRepository
	feed   Reloader
	linkRe *regexp.Regexp
	log    *slog.Logger
}

// NewComposer builds a composer. feed may be nil when nothing displays the
// created posts.
func NewComposer(posts PostRepository, feed Reloader, log *slog.Logger) (*Composer, error) {
	linkRe, err := xurls.StrictMatchingScheme("https://")
	if err != nil {
		return nil, fmt.Errorf("create regexp: %w", err)
	}

	return &Composer{
		posts:  posts,
		feed:   feed,
		linkRe: linkRe,
		log:    log,
	}, nil
}

func (c *Composer) Submit(ctx context.Context, draft domain.Draft) (domain.Post, error) {
	draft.Content = strings.TrimSpace(draft.Content)

	if draft.Content == "" {
		return domain.Post{}, &ValidationError{Field: "content", Reason: "is empty"}
	}

	if !draft.Actor.Valid() {
		return domain.Post{}, &ValidationError{Field: "actor", Reason: "is missing"}
	}

	draft.Media = c.withLinks(draft.Media, draft.Content)

	post, err := c.posts.CreatePost(ctx, draft)
	if err != nil {
		return domain.Post{}, fmt.Errorf("create post: %w", err)
	}

	c.log.InfoContext(ctx, "Post is created",
		"postID", post.ID,
		"actor", post.Actor.String(),
		"mediaCount", len(draft.Media))

	if c.feed != nil {
		if err = c.feed.Reload(ctx); err != nil {
			c.log.WarnContext(ctx, "Failed to reload feed after post creation",
				"error", err,
				"postID", post.ID)
		}
	}

	return post, nil
}

// withLinks appends a link attachment for each distinct https URL in content
// that is not attached already.
func (c *Composer) withLinks(media []domain.Media, content string) []domain.Media {
	seen := make(map[string]struct{}, len(media))
	for _, m := range media {
		seen[m.URL] = struct{}{}
	}

	links := 0
	for _, u := range c.linkRe.FindAllString(content, -1) {
		if links == maxLinkAttachments {
			break
		}

		u = strings.TrimSpace(u)
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}

		media = append(media, domain.Media{
			Kind:     domain.MediaLink,
			URL:      u,
			Position: len(media),
		})
		links++
	}

	return media
}
