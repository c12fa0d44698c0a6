package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"bazaar/internal/domain"
	"bazaar/internal/feed"
	"bazaar/internal/ratelimiter"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const updateProcessingTimeout = 60 * time.Second

// Directory holds profiles and community memberships.
type Directory interface {
	UpsertProfile(ctx context.Context, profile domain.Profile) error
	CreateCommunity(ctx context.Context, name string) (domain.Community, error)
	JoinCommunity(ctx context.Context, profileID int64, communityID int64) error
	LeaveCommunity(ctx context.Context, profileID int64, communityID int64) error
}

// FeedRegistrar registers organization feeds for import.
type FeedRegistrar interface {
	Register(ctx context.Context, feedURL string) (domain.OrganizationFeed, error)
}

type Config struct {
	Token        string
	AllowedUsers []int64
	PageSize     int
	FetchTimeout time.Duration
}

type Bot struct {
	client       *tgbot.Bot
	api          ratelimiter.API
	rateLimiter  *ratelimiter.RateLimiter
	repos        feed.Repositories
	directory    Directory
	registrar    FeedRegistrar
	previewer    *Previewer
	allowedUsers []int64
	pageSize     int
	fetchTimeout time.Duration
	menuKeyboard [][]models.InlineKeyboardButton
	log          *slog.Logger

	mu    sync.Mutex
	chats map[chatKey]*chatFeed
}

func New(
	cfg Config,
	repos feed.Repositories,
	directory Directory,
	registrar FeedRegistrar,
	previewer *Previewer,
	log *slog.Logger,
) (*Bot, error) {
	b := newBot(nil, repos, directory, registrar, previewer, cfg, log)

	client, err := tgbot.New(strings.TrimSpace(cfg.Token), tgbot.WithDefaultHandler(b.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	b.client = client
	b.rateLimiter = ratelimiter.New(client, log)
	b.api = b.rateLimiter

	return b, nil
}

func newBot(
	api ratelimiter.API,
	repos feed.Repositories,
	directory Directory,
	registrar FeedRegistrar,
	previewer *Previewer,
	cfg Config,
	log *slog.Logger,
) *Bot {
	if previewer == nil {
		previewer = NewPreviewer(nil, log)
	}

	return &Bot{
		api:          api,
		repos:        repos,
		directory:    directory,
		registrar:    registrar,
		previewer:    previewer,
		allowedUsers: cfg.AllowedUsers,
		pageSize:     cfg.PageSize,
		fetchTimeout: cfg.FetchTimeout,
		menuKeyboard: getMenuKeyboard(),
		log:          log,
		chats:        make(map[chatKey]*chatFeed),
	}
}

// Start receives updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	b.client.Start(ctx)

	b.log.InfoContext(ctx, "Bot context is done",
		"error", ctx.Err())
}

func (b *Bot) Stop() {
	if b.rateLimiter != nil {
		b.rateLimiter.Stop()
	}
}

func (b *Bot) handleUpdate(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	updateCtx, cancel := context.WithTimeout(ctx, updateProcessingTimeout)
	defer cancel()

	switch {
	case update.Message != nil && update.Message.From != nil:
		message := update.Message
		userID := message.From.ID

		if !b.userAllowed(userID) {
			b.log.DebugContext(updateCtx, "User is not allowed",
				"userID", userID,
				"chatID", message.Chat.ID,
				"username", message.From.Username,
				"chatType", message.Chat.Type)

			return
		}

		if err := b.handleMessage(updateCtx, message); err != nil {
			b.log.ErrorContext(updateCtx, "Failed to handle message",
				"error", err,
				"chatID", message.Chat.ID,
				"userID", userID,
				"chatType", message.Chat.Type,
				"messageID", message.ID)
		}

	case update.CallbackQuery != nil:
		callback := update.CallbackQuery
		chatID, messageID := callbackMessage(callback)

		if !b.userAllowed(callback.From.ID) {
			b.log.DebugContext(updateCtx, "User is not allowed",
				"userID", callback.From.ID,
				"chatID", chatID,
				"username", callback.From.Username,
				"data", callback.Data)

			return
		}

		if err := b.handleCallbackQuery(updateCtx, callback); err != nil {
			b.log.ErrorContext(updateCtx, "Failed to handle callback query",
				"error", err,
				"chatID", chatID,
				"userID", callback.From.ID,
				"data", callback.Data,
				"messageID", messageID)
		}
	}
}

func (b *Bot) userAllowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || slices.Contains(b.allowedUsers, userID)
}

func callbackMessage(callback *models.CallbackQuery) (int64, int) {
	switch {
	case callback.Message.Message != nil:
		return callback.Message.Message.Chat.ID, callback.Message.Message.ID
	case callback.Message.InaccessibleMessage != nil:
		return callback.Message.InaccessibleMessage.Chat.ID, callback.Message.InaccessibleMessage.MessageID
	default:
		return 0, 0
	}
}

// failed reports err to the chat and returns it together with any send error.
func (b *Bot) failed(ctx context.Context, chatID int64, text string, err error) error {
	errs := []error{err}

	if _, sendErr := b.sendMessage(ctx, chatID, text, b.menuKeyboard); sendErr != nil {
		errs = append(errs, fmt.Errorf("send message: %w", sendErr))
	}

	return errors.Join(errs...)
}
