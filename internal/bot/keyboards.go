package bot

import (
	"fmt"
	"strconv"

	"bazaar/internal/domain"

	"github.com/go-telegram/bot/models"
)

const (
	likeCallbackPrefix = "like_"
	moreCallbackData   = "more"
	feedCallbackData   = "feed"
	allCallbackData    = "all"
)

func getMenuKeyboard() [][]models.InlineKeyboardButton {
	return [][]models.InlineKeyboardButton{
		{
			{Text: "📰 Feed", CallbackData: feedCallbackData},
			{Text: "🌐 All posts", CallbackData: allCallbackData},
		},
	}
}

// getPageKeyboard has one like button per post, numbered like the message,
// and a load more button when more is set.
func getPageKeyboard(posts []domain.DecoratedPost, first int, more bool) [][]models.InlineKeyboardButton {
	keyboard := make([][]models.InlineKeyboardButton, 0, len(posts)+1)

	for i := range posts {
		heart := "🤍"
		if posts[i].Liked() {
			heart = "❤️"
		}

		keyboard = append(keyboard, []models.InlineKeyboardButton{{
			Text:         fmt.Sprintf("%s #%d · %d", heart, first+i, posts[i].LikeCount),
			CallbackData: likeCallbackPrefix + strconv.FormatInt(posts[i].ID, 10),
		}})
	}

	if more {
		keyboard = append(keyboard, []models.InlineKeyboardButton{
			{Text: "⬇️ More", CallbackData: moreCallbackData},
		})
	}

	return keyboard
}

func inlineKeyboard(keyboard [][]models.InlineKeyboardButton) models.ReplyMarkup {
	if len(keyboard) == 0 {
		return nil
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}
