package summarizer

import (
	"context"
)

// Input is one post to preview.
type Input struct {
	Text string
	// Author is the display name of the post's actor, if known.
	Author string
	// Community names the community the post belongs to, if any.
	Community string
}

type Summarizer interface {
	Summarize(ctx context.Context, input Input) (string, error)
}
