package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bazaar/internal/domain"

	tgbot "github.com/go-telegram/bot"
)

const (
	telegramMessageMaxLength = 4096
	maxNameRunes             = 64
	postTimeLayout           = "2 Jan 15:04"
)

// pageMessage is one Telegram message of a rendered page. first is the
// display number of its first post.
type pageMessage struct {
	text  string
	posts []domain.DecoratedPost
	first int
}

// sendPage renders posts numbered from first and sends them, attaching like
// buttons to every message and a load more button to the last one.
func (b *Bot) sendPage(
	ctx context.Context,
	chatID int64,
	chat *chatFeed,
	title string,
	posts []domain.DecoratedPost,
	first int,
	more bool,
) error {
	messages := b.formatPage(ctx, title, posts, first)

	var errs []error
	for i, m := range messages {
		withMore := more && i == len(messages)-1

		sent, err := b.sendMessage(ctx, chatID, m.text, getPageKeyboard(m.posts, m.first, withMore))
		if err != nil {
			errs = append(errs, fmt.Errorf("send message: %w", err))
			continue
		}

		ids := make([]int64, len(m.posts))
		for j := range m.posts {
			ids[j] = m.posts[j].ID
		}

		chat.rememberPage(sent.ID, sentPage{postIDs: ids, first: m.first, more: withMore})
	}

	return errors.Join(errs...)
}

func (b *Bot) formatPage(
	ctx context.Context,
	title string,
	posts []domain.DecoratedPost,
	first int,
) []pageMessage {
	header := fmt.Sprintf("📰 *%s*\n\n", tgbot.EscapeMarkdown(title))
	continued := fmt.Sprintf("📰 *%s \\(continue\\)*\n\n", tgbot.EscapeMarkdown(title))

	var messages []pageMessage

	current := pageMessage{first: first}
	var text strings.Builder
	text.WriteString(header)

	for i := range posts {
		block := formatPost(first+i, &posts[i], b.previewer.Preview(ctx, &posts[i]))

		if len(current.posts) > 0 && text.Len()+len(block) > telegramMessageMaxLength {
			current.text = text.String()
			messages = append(messages, current)

			current = pageMessage{first: first + i}
			text.Reset()
			text.WriteString(continued)
		}

		text.WriteString(block)
		current.posts = append(current.posts, posts[i])
	}

	if len(current.posts) > 0 {
		current.text = text.String()
		messages = append(messages, current)
	}

	return messages
}

func formatPost(number int, post *domain.DecoratedPost, text string) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("*%d\\.* ", number))
	if post.Pinned {
		b.WriteString("📌 ")
	}

	b.WriteString("*" + tgbot.EscapeMarkdown(shortName(actorLabel(post))) + "*")

	if post.Community != nil {
		b.WriteString(" · _" + tgbot.EscapeMarkdown(shortName(post.Community.Name)) + "_")
	}

	if post.Topic != nil {
		b.WriteString(" · " + tgbot.EscapeMarkdown(shortName(post.Topic.Title)))
	}

	b.WriteString("\n")
	b.WriteString(tgbot.EscapeMarkdown(text))
	b.WriteString("\n")

	for _, m := range post.Media {
		icon := "🔗"
		if m.Kind == domain.MediaImage {
			icon = "🖼"
		}

		b.WriteString(icon + " " + tgbot.EscapeMarkdown(m.URL) + "\n")
	}

	heart := "🤍"
	if post.Liked() {
		heart = "❤️"
	}

	b.WriteString(fmt.Sprintf("%s %d · 💬 %d · 🔁 %d · %s\n\n",
		heart,
		post.LikeCount,
		post.CommentCount,
		post.ShareCount,
		tgbot.EscapeMarkdown(post.CreatedAt.UTC().Format(postTimeLayout)),
	))

	return b.String()
}

func actorLabel(post *domain.DecoratedPost) string {
	if name := strings.TrimSpace(post.ActorName()); name != "" {
		return name
	}

	if post.Actor.Kind == domain.ActorOrganization {
		return "Organization " + strconv.FormatInt(post.Actor.ID, 10)
	}

	return "User " + strconv.FormatInt(post.Actor.ID, 10)
}

func shortName(name string) string {
	name = strings.Join(strings.Fields(name), " ")

	runes := []rune(name)
	if len(runes) <= maxNameRunes {
		return name
	}

	return string(runes[:maxNameRunes]) + "..."
}

func feedTitle(filter domain.Filter) string {
	switch {
	case filter.TopicID != nil:
		return "Topic " + strconv.FormatInt(*filter.TopicID, 10)
	case filter.CommunityID != nil:
		return "Community " + strconv.FormatInt(*filter.CommunityID, 10)
	default:
		return "Feed"
	}
}
