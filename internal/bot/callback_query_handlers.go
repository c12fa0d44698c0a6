package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bazaar/internal/domain"
	"bazaar/internal/feed"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *models.CallbackQuery) error {
	chatID, messageID := callbackMessage(callback)
	userID := callback.From.ID
	data := strings.TrimSpace(callback.Data)

	if chatID == 0 {
		return b.answerCallback(ctx, callback, "✖️ Message is too old.")
	}

	switch data {
	case feedCallbackData:
		return b.withSpinner(ctx, chatID, func() error {
			return b.withEmptyCallbackAnswer(ctx, callback, func() error {
				return b.handleFeedCommand(ctx, chatID, userID, nil)
			})
		})
	case allCallbackData:
		return b.withSpinner(ctx, chatID, func() error {
			return b.withEmptyCallbackAnswer(ctx, callback, func() error {
				return b.handleFeedCommand(ctx, chatID, userID, &domain.Filter{})
			})
		})
	case moreCallbackData:
		return b.withSpinner(ctx, chatID, func() error {
			return b.withEmptyCallbackAnswer(ctx, callback, func() error {
				return b.handleMoreCommand(ctx, chatID, userID)
			})
		})
	}

	if postIDStr, ok := strings.CutPrefix(data, likeCallbackPrefix); ok {
		return b.handleLikeQuery(ctx, callback, chatID, messageID, postIDStr)
	}

	return b.answerCallback(ctx, callback, "")
}

func (b *Bot) handleLikeQuery(
	ctx context.Context,
	callback *models.CallbackQuery,
	chatID int64,
	messageID int,
	postIDStr string,
) error {
	postID, err := strconv.ParseInt(strings.TrimSpace(postIDStr), 10, 64)
	if err != nil {
		return b.errorCallbackAnswer(ctx, callback, fmt.Errorf("parse postID: %w", err))
	}

	chat, err := b.chatFeed(chatID, callback.From.ID)
	if err != nil {
		return b.errorCallbackAnswer(ctx, callback, err)
	}

	liked, likes, err := chat.toggler.Toggle(ctx, postID)
	if errors.Is(err, feed.ErrPostNotFound) {
		return b.answerCallback(ctx, callback, "✖️ Post is no longer in your feed, open /feed.")
	}

	if err != nil {
		return b.errorCallbackAnswer(ctx, callback, fmt.Errorf("toggle reaction: %w", err))
	}

	text := fmt.Sprintf("🤍 Unliked (%d)", likes)
	if liked {
		text = fmt.Sprintf("❤️ Liked (%d)", likes)
	}

	errs := []error{b.answerCallback(ctx, callback, text)}

	if page, ok := chat.page(messageID); ok {
		posts := make([]domain.DecoratedPost, len(page.postIDs))
		for i, id := range page.postIDs {
			p, found := chat.store.Get(id)
			if !found {
				p = domain.DecoratedPost{Post: domain.Post{ID: id}}
			}
			posts[i] = p
		}

		if _, editErr := b.api.EditMessageReplyMarkup(ctx, &tgbot.EditMessageReplyMarkupParams{
			ChatID:      chatID,
			MessageID:   messageID,
			ReplyMarkup: inlineKeyboard(getPageKeyboard(posts, page.first, page.more)),
		}); editErr != nil {
			errs = append(errs, fmt.Errorf("edit reply markup: %w", editErr))
		}
	}

	return errors.Join(errs...)
}

func (b *Bot) answerCallback(ctx context.Context, callback *models.CallbackQuery, text string) error {
	if _, err := b.api.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: callback.ID,
		Text:            text,
	}); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}

	return nil
}

func (b *Bot) withEmptyCallbackAnswer(
	ctx context.Context,
	callback *models.CallbackQuery,
	fn func() error,
) error {
	var errs []error

	if err := b.answerCallback(ctx, callback, ""); err != nil {
		errs = append(errs, err)
	}

	if err := fn(); err != nil {
		errs = append(errs, fmt.Errorf("call fn: %w", err))
	}

	return errors.Join(errs...)
}

func (b *Bot) errorCallbackAnswer(ctx context.Context, callback *models.CallbackQuery, err error) error {
	if sendErr := b.answerCallback(ctx, callback, "❌ Failed."); sendErr != nil {
		return errors.Join(err, sendErr)
	}

	return err
}
