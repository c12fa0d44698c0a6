package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bazaar/internal/domain"
	"bazaar/internal/summarizer"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	previewThresholdRunes   = 600
	fallbackPreviewMaxRunes = 280
	previewCacheMaxEntries  = 1024
	previewCacheTTL         = 24 * time.Hour
)

// Previewer shortens long posts for display. Short posts are shown as is.
type Previewer struct {
	summarizer summarizer.Summarizer
	cache      *expirable.LRU[string, string]
	log        *slog.Logger
}

// NewPreviewer builds a previewer. With a nil summarizer long posts are
// truncated instead of summarized.
func NewPreviewer(s summarizer.Summarizer, log *slog.Logger) *Previewer {
	return &Previewer{
		summarizer: s,
		cache:      expirable.NewLRU[string, string](previewCacheMaxEntries, nil, previewCacheTTL),
		log:        log,
	}
}

func (p *Previewer) Preview(ctx context.Context, post *domain.DecoratedPost) string {
	text := strings.TrimSpace(post.Content)
	if len([]rune(text)) <= previewThresholdRunes {
		return text
	}

	key := previewCacheKey(post)
	if summary, ok := p.cache.Get(key); ok {
		return summary
	}

	if p.summarizer == nil {
		return fallbackPreview(text)
	}

	input := summarizer.Input{Text: text, Author: post.ActorName()}
	if post.Community != nil {
		input.Community = post.Community.Name
	}

	summary, err := p.summarizer.Summarize(ctx, input)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to summarize post",
			"error", err,
			"postID", post.ID,
			"fallback", true,
			"textLen", len(text))

		return fallbackPreview(text)
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fallbackPreview(text)
	}

	summary = fallbackPreview(summary)
	p.cache.Add(key, summary)

	return summary
}

// previewCacheKey changes whenever the post is edited.
func previewCacheKey(post *domain.DecoratedPost) string {
	return fmt.Sprintf("%d|%d", post.ID, post.UpdatedAt.UnixMicro())
}

func fallbackPreview(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")

	runes := []rune(normalized)
	if len(runes) <= fallbackPreviewMaxRunes {
		return normalized
	}

	trimmed := strings.TrimSpace(string(runes[:fallbackPreviewMaxRunes]))
	if trimmed == "" {
		return normalized
	}

	return trimmed + "..."
}
