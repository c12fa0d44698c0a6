package bot

import (
	"context"
	"strings"
	"unicode"

	"github.com/go-telegram/bot/models"
)

const helpText = `❔ *Commands*

/feed – reload the feed
/more – load older posts
/community 3 – posts of community 3
/topic 7 – posts of topic 7
/all – posts of every community you can see
/post text – publish a post
/newcommunity name – create a community and join it
/join 3, /leave 3 – community membership
/follow https://example\.com/rss – import an organization feed`

func (b *Bot) handleMessage(ctx context.Context, message *models.Message) error {
	chatID := message.Chat.ID
	command, arg := splitCommand(message.Text)

	return b.withSpinner(ctx, chatID, func() error {
		switch command {
		case "/start":
			return b.handleStartCommand(ctx, chatID, message.From)
		case "/feed":
			return b.handleFeedCommand(ctx, chatID, message.From.ID, nil)
		case "/more":
			return b.handleMoreCommand(ctx, chatID, message.From.ID)
		case "/community", "/topic", "/all":
			return b.handleFilterCommand(ctx, chatID, message.From.ID, command, arg)
		case "/post":
			return b.handlePostCommand(ctx, chatID, message.From.ID, arg)
		case "/join", "/leave":
			return b.handleMembershipCommand(ctx, chatID, message.From, command == "/join", arg)
		case "/newcommunity":
			return b.handleNewCommunityCommand(ctx, chatID, message.From, arg)
		case "/follow":
			return b.handleFollowCommand(ctx, chatID, arg)
		default:
			_, err := b.sendMessage(ctx, chatID, helpText, b.menuKeyboard)
			return err
		}
	})
}

// splitCommand returns the command without a bot mention and the rest of
// the text.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	command, arg := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		command, arg = text[:i], strings.TrimSpace(text[i:])
	}

	command, _, _ = strings.Cut(command, "@")

	return strings.ToLower(command), arg
}
