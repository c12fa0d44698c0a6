package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const (
	baseMaxOutputTokens  int64 = 512
	limitMaxOutputTokens int64 = 2048

	systemPrompt = `Write a one-line preview of a community marketplace post.

Rules:
- At most 25 words (hard limit 40).
- Keep what is offered or asked for, with prices, places and dates.
- Neutral tone, no emojis, no hashtags.
- Do not invent details that are not in the post.
- Output exactly one line in the same language as the post.`
)

// OpenAISummarizer previews posts with OpenAI's Responses API.
type OpenAISummarizer struct {
	client openai.Client
}

func NewOpenAISummarizer(apiKey string) (*OpenAISummarizer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("API key is empty")
	}

	return &OpenAISummarizer{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, input Input) (string, error) {
	prompt, err := userPrompt(input)
	if err != nil {
		return "", err
	}

	maxOutputTokens := baseMaxOutputTokens
	for {
		resp, err := s.client.Responses.New(ctx, responses.ResponseNewParams{
			Model:           openai.ChatModelGPT5Mini2025_08_07,
			ServiceTier:     responses.ResponseNewParamsServiceTierFlex,
			MaxOutputTokens: openai.Int(maxOutputTokens),
			Reasoning: responses.ReasoningParam{
				Effort: openai.ReasoningEffortLow,
			},
			Instructions: openai.String(systemPrompt),
			Input: responses.ResponseNewParamsInputUnion{
				OfString: openai.String(prompt),
			},
		})
		if err != nil {
			return "", fmt.Errorf("do request: %w", err)
		}

		if resp.Status == "incomplete" {
			if resp.IncompleteDetails.Reason == "max_output_tokens" && maxOutputTokens < limitMaxOutputTokens {
				maxOutputTokens = min(maxOutputTokens*2, limitMaxOutputTokens)
				continue
			}

			return "", fmt.Errorf(
				"response is incomplete (reason = %s, maxOutputTokens = %d)",
				resp.IncompleteDetails.Reason,
				maxOutputTokens,
			)
		}

		summary := strings.TrimSpace(resp.OutputText())
		if summary == "" {
			return "", fmt.Errorf("output text is missing (status = %s)", resp.Status)
		}

		return summary, nil
	}
}

func userPrompt(input Input) (string, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return "", errors.New("input is empty")
	}

	var b strings.Builder
	if author := strings.TrimSpace(input.Author); author != "" {
		b.WriteString("Author:\n")
		b.WriteString(author)
		b.WriteString("\n")
	}

	if community := strings.TrimSpace(input.Community); community != "" {
		b.WriteString("Community:\n")
		b.WriteString(community)
		b.WriteString("\n")
	}

	b.WriteString("Post:\n")
	b.WriteString(text)

	return b.String(), nil
}
