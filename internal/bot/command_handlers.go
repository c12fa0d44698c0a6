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

const welcomeText = `🤖 *Welcome to Bazaar\!*

Browse what your neighbours and local organizations offer\.

– /feed shows the newest public posts and posts of your communities
– /post publishes a post
– Tap 🤍 under a post to like it

Send any other text to see all commands\.`

func (b *Bot) handleStartCommand(ctx context.Context, chatID int64, user *models.User) error {
	if err := b.directory.UpsertProfile(ctx, profileOf(user)); err != nil {
		return b.failed(ctx, chatID, "❌ Failed\\.", fmt.Errorf("upsert profile: %w", err))
	}

	_, err := b.sendMessage(ctx, chatID, welcomeText, b.menuKeyboard)

	return err
}

// handleFeedCommand refreshes the chat's feed with filter, or reloads it
// with its current filter when filter is nil, and sends the first page.
func (b *Bot) handleFeedCommand(ctx context.Context, chatID int64, userID int64, filter *domain.Filter) error {
	chat, err := b.chatFeed(chatID, userID)
	if err != nil {
		return b.failed(ctx, chatID, "❌ Failed\\.", err)
	}

	if filter == nil {
		err = chat.session.Reload(ctx)
	} else {
		err = chat.session.Refresh(ctx, *filter)
	}

	if err != nil {
		return b.failed(ctx, chatID, "❌ Failed to load the feed\\.", fmt.Errorf("refresh feed: %w", err))
	}

	return b.showFeed(ctx, chatID, chat)
}

func (b *Bot) showFeed(ctx context.Context, chatID int64, chat *chatFeed) error {
	if chat.session.LastState() == feed.SessionAborted {
		_, err := b.sendMessage(ctx, chatID, "⌛ The feed took too long to load\\. Try again\\.", b.menuKeyboard)
		return err
	}

	posts := chat.session.Posts()
	if len(posts) == 0 {
		if chat.session.HasMore() {
			_, err := b.sendMessage(ctx, chatID,
				"✖️ Nothing you can see among the newest posts\\. Older posts may still be visible\\.",
				getPageKeyboard(nil, 1, true))
			return err
		}

		_, err := b.sendMessage(ctx, chatID, "✖️ No posts yet\\.", b.menuKeyboard)
		return err
	}

	return b.sendPage(ctx, chatID, chat, feedTitle(chat.session.Filter()), posts, 1, chat.session.HasMore())
}

func (b *Bot) handleMoreCommand(ctx context.Context, chatID int64, userID int64) error {
	chat, err := b.chatFeed(chatID, userID)
	if err != nil {
		return b.failed(ctx, chatID, "❌ Failed\\.", err)
	}

	before := chat.store.Len()
	if before == 0 && !chat.session.HasMore() {
		return b.handleFeedCommand(ctx, chatID, userID, nil)
	}

	if err = chat.session.LoadMore(ctx); err != nil {
		return b.failed(ctx, chatID, "❌ Failed to load more posts\\.", fmt.Errorf("load more: %w", err))
	}

	posts := chat.session.Posts()
	if len(posts) <= before {
		keyboard := b.menuKeyboard
		text := "✖️ No more posts\\."
		switch {
		case chat.session.LastState() == feed.SessionAborted:
			text = "⌛ The feed took too long to load\\. Try again\\."
		case chat.session.HasMore():
			text = "✖️ Nothing you can see on this page\\. Older posts may still be visible\\."
			keyboard = getPageKeyboard(nil, before+1, true)
		}

		_, err = b.sendMessage(ctx, chatID, text, keyboard)

		return err
	}

	return b.sendPage(
		ctx,
		chatID,
		chat,
		feedTitle(chat.session.Filter()),
		posts[before:],
		before+1,
		chat.session.HasMore(),
	)
}

func (b *Bot) handleFilterCommand(
	ctx context.Context,
	chatID int64,
	userID int64,
	command string,
	arg string,
) error {
	var filter domain.Filter

	if command != "/all" {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			_, sendErr := b.sendMessage(ctx, chatID,
				fmt.Sprintf("✖️ Send an id, for example `%s 3`\\.", command), b.menuKeyboard)

			return sendErr
		}

		if command == "/community" {
			filter.CommunityID = &id
		} else {
			filter.TopicID = &id
		}
	}

	return b.handleFeedCommand(ctx, chatID, userID, &filter)
}

func (b *Bot) handlePostCommand(ctx context.Context, chatID int64, userID int64, text string) error {
	chat, err := b.chatFeed(chatID, userID)
	if err != nil {
		return b.failed(ctx, chatID, "❌ Failed\\.", err)
	}

	filter := chat.session.Filter()

	post, err := chat.composer.Submit(ctx, domain.Draft{
		Actor:       domain.UserActor(userID),
		CommunityID: filter.CommunityID,
		TopicID:     filter.TopicID,
		Content:     text,
	})
	if errors.Is(err, feed.ErrValidation) {
		_, sendErr := b.sendMessage(ctx, chatID, "✖️ Write the post after /post\\.", b.menuKeyboard)
		return sendErr
	}

	if err != nil {
		return b.failed(ctx, chatID, "❌ Failed to publish the post\\.", fmt.Errorf("submit post: %w", err))
	}

	if _, err = b.sendMessage(ctx, chatID, fmt.Sprintf("✅ Post %d is published\\.", post.ID), nil); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return b.showFeed(ctx, chatID, chat)
}

func (b *Bot) handleMembershipCommand(
	ctx context.Context,
	chatID int64,
	user *models.User,
	join bool,
	arg string,
) error {
	communityID, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || communityID <= 0 {
		_, sendErr := b.sendMessage(ctx, chatID, "✖️ Send a community id, for example `/join 3`\\.", b.menuKeyboard)
		return sendErr
	}

	if err = b.directory.UpsertProfile(ctx, profileOf(user)); err != nil {
		return b.failed(ctx, chatID, "❌ Failed\\.", fmt.Errorf("upsert profile: %w", err))
	}

	text := fmt.Sprintf("✅ You joined community %d\\.", communityID)
	if join {
		err = b.directory.JoinCommunity(ctx, user.ID, communityID)
	} else {
		err = b.directory.LeaveCommunity(ctx, user.ID, communityID)
		text = fmt.Sprintf("✅ You left community %d\\.", communityID)
	}

	if err != nil {
		return b.failed(ctx, chatID, "❌ Failed to update membership\\.", fmt.Errorf("update membership: %w", err))
	}

	return b.membershipChanged(ctx, chatID, user.ID, text)
}

func (b *Bot) handleNewCommunityCommand(ctx context.Context, chatID int64, user *models.User, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		_, err := b.sendMessage(ctx, chatID, "✖️ Send a name, for example `/newcommunity Garden`\\.", b.menuKeyboard)
		return err
	}

	if err := b.directory.UpsertProfile(ctx, profileOf(user)); err != nil {
		return b.failed(ctx, chatID, "❌ Failed\\.", fmt.Errorf("upsert profile: %w", err))
	}

	community, err := b.directory.CreateCommunity(ctx, name)
	if err != nil {
		return b.failed(ctx, chatID, "❌ Failed to create the community\\.", fmt.Errorf("create community: %w", err))
	}

	if err = b.directory.JoinCommunity(ctx, user.ID, community.ID); err != nil {
		return b.failed(ctx, chatID, "❌ Failed to join the community\\.", fmt.Errorf("join community: %w", err))
	}

	return b.membershipChanged(ctx, chatID, user.ID, fmt.Sprintf(
		"✅ Community *%s* is created with id %d\\.",
		tgbot.EscapeMarkdown(community.Name),
		community.ID,
	))
}

// membershipChanged drops the cached memberships of the user's feed and
// confirms the change.
func (b *Bot) membershipChanged(ctx context.Context, chatID int64, userID int64, text string) error {
	chat, err := b.chatFeed(chatID, userID)
	if err != nil {
		return b.failed(ctx, chatID, "❌ Failed\\.", err)
	}

	chat.session.ForgetMemberships()

	_, err = b.sendMessage(ctx, chatID, text, b.menuKeyboard)

	return err
}

func (b *Bot) handleFollowCommand(ctx context.Context, chatID int64, feedURL string) error {
	if b.registrar == nil {
		_, err := b.sendMessage(ctx, chatID, "✖️ Feed import is disabled\\.", b.menuKeyboard)
		return err
	}

	f, err := b.registrar.Register(ctx, feedURL)
	if err != nil {
		return b.failed(ctx, chatID, "✖️ Valid feed is not found or there is a bug\\.",
			fmt.Errorf("register feed: %w", err))
	}

	_, err = b.sendMessage(ctx, chatID, fmt.Sprintf(
		"✅ Posts of *%s* will be imported\\.",
		tgbot.EscapeMarkdown(f.Title),
	), b.menuKeyboard)

	return err
}

func profileOf(user *models.User) domain.Profile {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)

	return domain.Profile{
		ID:          user.ID,
		DisplayName: name,
		Username:    user.Username,
	}
}
