package bot

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"bazaar/internal/feed"
)

const maxRememberedPages = 50

type chatKey struct {
	chatID int64
	userID int64
}

// sentPage remembers which posts a sent message shows, so its keyboard can
// be redrawn after a like.
type sentPage struct {
	postIDs []int64
	first   int
	more    bool
}

// chatFeed is the feed one user browses in one chat.
type chatFeed struct {
	session  *feed.Session
	store    *feed.Store
	toggler  *feed.ReactionToggler
	composer *feed.Composer

	mu    sync.Mutex
	pages map[int]sentPage
}

func (b *Bot) chatFeed(chatID int64, userID int64) (*chatFeed, error) {
	key := chatKey{chatID: chatID, userID: userID}

	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.chats[key]; ok {
		return c, nil
	}

	store := feed.NewStore()
	session := feed.NewSession(b.repos, store, feed.SessionConfig{
		ViewerID:     userID,
		PageSize:     b.pageSize,
		FetchTimeout: b.fetchTimeout,
	}, b.log.With("chatID", chatID, "userID", userID))

	composer, err := feed.NewComposer(b.repos.Posts, session, b.log)
	if err != nil {
		return nil, fmt.Errorf("create composer: %w", err)
	}

	c := &chatFeed{
		session:  session,
		store:    store,
		toggler:  feed.NewReactionToggler(b.repos.Reactions, store, userID, b.log),
		composer: composer,
		pages:    make(map[int]sentPage),
	}
	b.chats[key] = c

	return c, nil
}

func (c *chatFeed) rememberPage(messageID int, page sentPage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pages[messageID] = page

	if len(c.pages) > maxRememberedPages {
		delete(c.pages, slices.Min(slices.Collect(maps.Keys(c.pages))))
	}
}

func (c *chatFeed) page(messageID int) (sentPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pages[messageID]

	return p, ok
}
