package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bazaar/internal/database"
	"bazaar/internal/domain"
	"bazaar/internal/feed"

	"github.com/mmcdole/gofeed"
)

type itemRef struct {
	feedID int64
	key    string
}

type memoryStore struct {
	mu        sync.Mutex
	orgs      []domain.Organization
	feeds     []domain.OrganizationFeed
	claims    map[itemRef]int64
	completed map[itemRef]int64
	released  []itemRef
}

func newMemoryStore(feeds ...domain.OrganizationFeed) *memoryStore {
	return &memoryStore{
		feeds:     feeds,
		claims:    make(map[itemRef]int64),
		completed: make(map[itemRef]int64),
	}
}

func (s *memoryStore) CreateOrganization(_ context.Context, name string) (domain.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	org := domain.Organization{ID: int64(len(s.orgs) + 1), Name: name}
	s.orgs = append(s.orgs, org)

	return org, nil
}

func (s *memoryStore) AddOrganizationFeed(
	_ context.Context,
	organizationID int64,
	feedURL string,
	feedTitle string,
) (domain.OrganizationFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := domain.OrganizationFeed{
		ID:             int64(len(s.feeds) + 1),
		OrganizationID: organizationID,
		URL:            feedURL,
		Title:          feedTitle,
	}
	s.feeds = append(s.feeds, f)

	return f, nil
}

func (s *memoryStore) OrganizationFeedByURL(_ context.Context, feedURL string) (domain.OrganizationFeed, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.feeds {
		if f.URL == feedURL {
			return f, true, nil
		}
	}

	return domain.OrganizationFeed{}, false, nil
}

func (s *memoryStore) UpdateOrganizationFeedTitle(_ context.Context, feedID int64, feedTitle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.feeds {
		if s.feeds[i].ID == feedID {
			s.feeds[i].Title = feedTitle
		}
	}

	return nil
}

func (s *memoryStore) OrganizationFeeds(context.Context) ([]domain.OrganizationFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.OrganizationFeed(nil), s.feeds...), nil
}

func (s *memoryStore) ClaimItem(_ context.Context, feedID int64, itemKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := itemRef{feedID: feedID, key: itemKey}
	if _, ok := s.claims[ref]; ok {
		return false, nil
	}

	s.claims[ref] = 0

	return true, nil
}

func (s *memoryStore) CompleteItem(_ context.Context, feedID int64, itemKey string, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed[itemRef{feedID: feedID, key: itemKey}] = postID

	return nil
}

func (s *memoryStore) ReleaseItem(_ context.Context, feedID int64, itemKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := itemRef{feedID: feedID, key: itemKey}
	delete(s.claims, ref)
	s.released = append(s.released, ref)

	return nil
}

type stubSubmitter struct {
	mu     sync.Mutex
	drafts []domain.Draft
	err    error
}

func (s *stubSubmitter) Submit(_ context.Context, draft domain.Draft) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return domain.Post{}, s.err
	}

	s.drafts = append(s.drafts, draft)

	return domain.Post{ID: int64(len(s.drafts)), Actor: draft.Actor, Content: draft.Content}, nil
}

func (s *stubSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.drafts)
}

func rssFeed(title string, items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>` + title + `</title>` + strings.Join(items, "") + `</channel></rss>`
}

func rssItem(guid string, title string, description string, published time.Time) string {
	return fmt.Sprintf(
		`<item><guid>%s</guid><title>%s</title><link>https://coop.example/%s</link>`+
			`<description><![CDATA[%s]]></description><pubDate>%s</pubDate></item>`,
		guid, title, guid, description, published.Format(time.RFC1123Z))
}

func newFeedServer(t *testing.T, feeds map[string]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := feeds[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func newTestImporter(store Store, submitter Submitter) *Importer {
	return New(store, submitter, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestImportAllCreatesPostsOnce(t *testing.T) {
	now := time.Now()
	srv := newFeedServer(t, map[string]string{
		"/rss": rssFeed("Co-op news",
			rssItem("1", "Seed swap", "<p>Bring <b>seeds</b></p><p>Saturday</p>", now.Add(-time.Hour)),
			rssItem("2", "Bike repair", "Free repairs", now.Add(-2*time.Hour)),
			rssItem("3", "Old news", "Ancient", now.Add(-72*time.Hour)),
		),
	})

	store := newMemoryStore(domain.OrganizationFeed{ID: 1, OrganizationID: 5, URL: srv.URL + "/rss", Title: "old"})
	submitter := &stubSubmitter{}
	im := newTestImporter(store, submitter)

	created, err := im.ImportAll(context.Background())
	if err != nil {
		t.Fatalf("ImportAll returned error: %v", err)
	}

	if created != 2 || submitter.count() != 2 {
		t.Fatalf("expected 2 created posts, got %d (submitted %d)", created, submitter.count())
	}

	first := submitter.drafts[0]
	if first.Actor != domain.OrganizationActor(5) {
		t.Fatalf("unexpected actor: %+v", first.Actor)
	}

	want := "Seed swap\n\nBring seeds\nSaturday\n\nhttps://coop.example/1"
	if first.Content != want {
		t.Fatalf("unexpected content:\n%q\nwant\n%q", first.Content, want)
	}

	if store.feeds[0].Title != "Co-op news" {
		t.Fatalf("feed title should be refreshed, got %q", store.feeds[0].Title)
	}

	if postID := store.completed[itemRef{feedID: 1, key: "guid:1"}]; postID == 0 {
		t.Fatalf("item 1 should be completed")
	}

	created, err = im.ImportAll(context.Background())
	if err != nil {
		t.Fatalf("second ImportAll returned error: %v", err)
	}

	if created != 0 || submitter.count() != 2 {
		t.Fatalf("second run should not create posts, created %d", created)
	}
}

func TestImportAllReleasesFailedItems(t *testing.T) {
	srv := newFeedServer(t, map[string]string{
		"/rss": rssFeed("Co-op", rssItem("1", "Seed swap", "Bring seeds", time.Now())),
	})

	store := newMemoryStore(domain.OrganizationFeed{ID: 1, OrganizationID: 5, URL: srv.URL + "/rss"})
	errSubmit := errors.New("db is locked")
	submitter := &stubSubmitter{err: errSubmit}
	im := newTestImporter(store, submitter)

	created, err := im.ImportAll(context.Background())
	if !errors.Is(err, errSubmit) {
		t.Fatalf("expected submit error, got %v", err)
	}

	if created != 0 || len(store.released) != 1 {
		t.Fatalf("failed item should be released, created %d released %v", created, store.released)
	}

	submitter.err = nil

	created, err = im.ImportAll(context.Background())
	if err != nil || created != 1 {
		t.Fatalf("released item should be retried, created %d err %v", created, err)
	}
}

func TestImportAllContinuesAfterBrokenFeed(t *testing.T) {
	srv := newFeedServer(t, map[string]string{
		"/ok": rssFeed("Co-op", rssItem("1", "Seed swap", "Bring seeds", time.Now())),
	})

	store := newMemoryStore(
		domain.OrganizationFeed{ID: 1, OrganizationID: 5, URL: srv.URL + "/missing"},
		domain.OrganizationFeed{ID: 2, OrganizationID: 6, URL: srv.URL + "/ok"},
	)
	submitter := &stubSubmitter{}
	im := newTestImporter(store, submitter)

	created, err := im.ImportAll(context.Background())
	if err == nil {
		t.Fatalf("expected error for the missing feed")
	}

	if !strings.Contains(err.Error(), "import feed 1") {
		t.Fatalf("error should name the failing feed: %v", err)
	}

	if created != 1 {
		t.Fatalf("healthy feed should still be imported, created %d", created)
	}
}

func TestRegisterCreatesOrganization(t *testing.T) {
	srv := newFeedServer(t, map[string]string{
		"/rss": rssFeed("Riverside Co-op"),
	})

	store := newMemoryStore()
	im := newTestImporter(store, &stubSubmitter{})

	f, err := im.Register(context.Background(), "  "+srv.URL+"/rss  ")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if f.Title != "Riverside Co-op" || f.URL != srv.URL+"/rss" {
		t.Fatalf("unexpected feed: %+v", f)
	}

	if len(store.orgs) != 1 || store.orgs[0].Name != "Riverside Co-op" || f.OrganizationID != store.orgs[0].ID {
		t.Fatalf("unexpected organizations: %+v", store.orgs)
	}
}

func TestRegisterSameURLTwiceImportsOnce(t *testing.T) {
	ctx := context.Background()
	srv := newFeedServer(t, map[string]string{
		"/rss": rssFeed("Riverside Co-op", rssItem("1", "Seed swap", "Bring seeds", time.Now().Add(-time.Hour))),
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.New(ctx, filepath.Join(t.TempDir(), "test.sqlite"), log)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	composer, err := feed.NewComposer(db, nil, log)
	if err != nil {
		t.Fatalf("create composer: %v", err)
	}

	im := New(db, composer, log)

	first, err := im.Register(ctx, srv.URL+"/rss")
	if err != nil {
		t.Fatalf("first Register returned error: %v", err)
	}

	second, err := im.Register(ctx, srv.URL+"/rss")
	if err != nil {
		t.Fatalf("second Register returned error: %v", err)
	}

	if second.ID != first.ID || second.OrganizationID != first.OrganizationID {
		t.Fatalf("second registration should reuse the feed: %+v vs %+v", second, first)
	}

	feeds, err := db.OrganizationFeeds(ctx)
	if err != nil {
		t.Fatalf("OrganizationFeeds returned error: %v", err)
	}

	if len(feeds) != 1 {
		t.Fatalf("expected one registered feed, got %d", len(feeds))
	}

	created, err := im.ImportAll(ctx)
	if err != nil || created != 1 {
		t.Fatalf("expected one imported post, created %d err %v", created, err)
	}

	posts, err := db.FetchPage(ctx, domain.Filter{}, nil, 20)
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}

	if len(posts) != 1 || posts[0].Actor != domain.OrganizationActor(first.OrganizationID) {
		t.Fatalf("expected one post by organization %d, got %+v", first.OrganizationID, posts)
	}
}

func TestRegisterRejectsNonHTTPURL(t *testing.T) {
	im := newTestImporter(newMemoryStore(), &stubSubmitter{})

	if _, err := im.Register(context.Background(), "ftp://example.com/rss"); err == nil {
		t.Fatalf("expected error for ftp URL")
	}
}

func TestItemKey(t *testing.T) {
	if got := itemKey(&gofeed.Item{GUID: " g ", Link: "https://x"}); got != "guid:g" {
		t.Fatalf("guid key = %q", got)
	}

	if got := itemKey(&gofeed.Item{Link: "https://x"}); got != "link:https://x" {
		t.Fatalf("link key = %q", got)
	}

	a := itemKey(&gofeed.Item{Title: "t", Description: "d"})
	b := itemKey(&gofeed.Item{Title: "t", Description: "d"})
	if !strings.HasPrefix(a, "hash:") || a != b {
		t.Fatalf("hash keys should be stable, got %q and %q", a, b)
	}

	if got := itemKey(&gofeed.Item{}); got != "" {
		t.Fatalf("empty item key = %q", got)
	}
}

func TestHTMLToText(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{name: "plain", html: "just  text", want: "just text"},
		{name: "breaks", html: "one<br>two<br/>three", want: "one\ntwo\nthree"},
		{name: "paragraphs", html: "<p>first</p><p>second <i>line</i></p>", want: "first\nsecond line"},
		{name: "script dropped", html: "<p>visible</p><script>alert(1)</script>", want: "visible"},
		{name: "nested list", html: "<ul><li>a</li><li>b</li></ul>", want: "a\nb"},
		{name: "empty", html: "  ", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := htmlToText(tc.html)
			if err != nil {
				t.Fatalf("htmlToText returned error: %v", err)
			}

			if got != tc.want {
				t.Fatalf("htmlToText(%q) = %q, want %q", tc.html, got, tc.want)
			}
		})
	}
}

func TestTruncateIsRuneSafe(t *testing.T) {
	got := truncate("привет мир", 6)
	if got != "привет..." {
		t.Fatalf("truncate = %q", got)
	}

	if got = truncate("short", 10); got != "short" {
		t.Fatalf("short text changed: %q", got)
	}
}
