package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"bazaar/internal/domain"

	"github.com/mmcdole/gofeed"
)

const (
	importConcurrencyGrowthFactor = 4
	itemGracePeriod               = 10 * time.Minute
	maxItemAge                    = 24 * time.Hour
	maxContentRunes               = 2000
)

// Store persists organization feeds and remembers imported items.
type Store interface {
	CreateOrganization(ctx context.Context, name string) (domain.Organization, error)
	AddOrganizationFeed(ctx context.Context, organizationID int64, feedURL, feedTitle string) (domain.OrganizationFeed, error)
	OrganizationFeedByURL(ctx context.Context, feedURL string) (domain.OrganizationFeed, bool, error)
	UpdateOrganizationFeedTitle(ctx context.Context, feedID int64, feedTitle string) error
	OrganizationFeeds(ctx context.Context) ([]domain.OrganizationFeed, error)
	ClaimItem(ctx context.Context, feedID int64, itemKey string) (bool, error)
	CompleteItem(ctx context.Context, feedID int64, itemKey string, postID int64) error
	ReleaseItem(ctx context.Context, feedID int64, itemKey string) error
}

// Submitter creates posts from drafts.
type Submitter interface {
	Submit(ctx context.Context, draft domain.Draft) (domain.Post, error)
}

// Importer turns items of registered RSS, Atom and JSON feeds into public
// posts authored by the feed's organization.
type Importer struct {
	store     Store
	submitter Submitter
	parser    *gofeed.Parser
	now       func() time.Time
	log       *slog.Logger
}

func New(store Store, submitter Submitter, log *slog.Logger) *Importer {
	return &Importer{
		store:     store,
		submitter: submitter,
		parser:    gofeed.NewParser(),
		now:       time.Now,
		log:       log,
	}
}

// Register validates feedURL, creates an organization named after the feed
// and registers the feed for it. A feed registered before keeps its
// organization and only gets its title refreshed.
func (im *Importer) Register(ctx context.Context, feedURL string) (domain.OrganizationFeed, error) {
	feedURL = strings.TrimSpace(feedURL)

	u, err := url.Parse(feedURL)
	if err != nil {
		return domain.OrganizationFeed{}, fmt.Errorf("parse URL: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return domain.OrganizationFeed{}, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	parsed, err := im.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return domain.OrganizationFeed{}, fmt.Errorf("parse feed (URL = %s): %w", feedURL, err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		im.log.WarnContext(ctx, "Empty feed title",
			"feedURL", feedURL,
			"fallbackTitle", u.Host)

		title = u.Host
	}

	existing, found, err := im.store.OrganizationFeedByURL(ctx, feedURL)
	if err != nil {
		return domain.OrganizationFeed{}, fmt.Errorf("get organization feed: %w", err)
	}

	if found {
		if err = im.store.UpdateOrganizationFeedTitle(ctx, existing.ID, title); err != nil {
			return domain.OrganizationFeed{}, fmt.Errorf("update feed title: %w", err)
		}

		existing.Title = title

		im.log.InfoContext(ctx, "Feed is already registered",
			"feedID", existing.ID,
			"organizationID", existing.OrganizationID,
			"feedURL", feedURL)

		return existing, nil
	}

	org, err := im.store.CreateOrganization(ctx, title)
	if err != nil {
		return domain.OrganizationFeed{}, fmt.Errorf("create organization: %w", err)
	}

	f, err := im.store.AddOrganizationFeed(ctx, org.ID, feedURL, title)
	if err != nil {
		return domain.OrganizationFeed{}, fmt.Errorf("add organization feed: %w", err)
	}

	return f, nil
}

// ImportAll imports new items of every registered feed and returns the
// number of created posts. A failing feed does not stop the others.
func (im *Importer) ImportAll(ctx context.Context) (int, error) {
	feeds, err := im.store.OrganizationFeeds(ctx)
	if err != nil {
		return 0, fmt.Errorf("get organization feeds: %w", err)
	}

	if len(feeds) == 0 {
		return 0, nil
	}

	concurrency := min(runtime.NumCPU()*importConcurrencyGrowthFactor, len(feeds))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)

	tasks := make(chan domain.OrganizationFeed)

	for range concurrency {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for f := range tasks {
				n, importErr := im.importFeed(ctx, f)

				mu.Lock()
				created += n
				if importErr != nil {
					errs = append(errs, fmt.Errorf("import feed %d: %w", f.ID, importErr))
				}
				mu.Unlock()
			}
		}()
	}

	for _, f := range feeds {
		tasks <- f
	}

	close(tasks)
	wg.Wait()

	return created, errors.Join(errs...)
}

func (im *Importer) importFeed(ctx context.Context, f domain.OrganizationFeed) (int, error) {
	parsed, err := im.parser.ParseURLWithContext(f.URL, ctx)
	if err != nil {
		return 0, fmt.Errorf("parse feed (URL = %s): %w", f.URL, err)
	}

	var errs []error

	if title := strings.TrimSpace(parsed.Title); title != "" && title != f.Title {
		if err = im.store.UpdateOrganizationFeedTitle(ctx, f.ID, title); err != nil {
			errs = append(errs, fmt.Errorf("update feed title: %w", err))
		}
	}

	cutoff := im.now().Add(-maxItemAge - itemGracePeriod)
	created := 0

	for _, item := range parsed.Items {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		if published := itemTime(item); !published.IsZero() && published.Before(cutoff) {
			continue
		}

		ok, importErr := im.importItem(ctx, f, item)
		if importErr != nil {
			errs = append(errs, importErr)
			continue
		}

		if ok {
			created++
		}
	}

	postsImported.Add(float64(created))

	return created, errors.Join(errs...)
}

// importItem claims the item, submits it and records the created post. A
// failed submission releases the claim so the next run retries it.
func (im *Importer) importItem(ctx context.Context, f domain.OrganizationFeed, item *gofeed.Item) (bool, error) {
	key := itemKey(item)
	if key == "" {
		im.log.WarnContext(ctx, "Skipping feed item without identity",
			"feedID", f.ID,
			"feedURL", f.URL)

		return false, nil
	}

	claimed, err := im.store.ClaimItem(ctx, f.ID, key)
	if err != nil {
		return false, fmt.Errorf("claim item: %w", err)
	}

	if !claimed {
		return false, nil
	}

	content, err := itemContent(item)
	if err != nil {
		errs := []error{fmt.Errorf("build item content: %w", err)}
		if releaseErr := im.store.ReleaseItem(ctx, f.ID, key); releaseErr != nil {
			errs = append(errs, fmt.Errorf("release item: %w", releaseErr))
		}

		return false, errors.Join(errs...)
	}

	// Empty items keep their claim and are never retried.
	if content == "" {
		im.log.WarnContext(ctx, "Skipping empty feed item",
			"feedID", f.ID,
			"itemKey", key)

		return false, nil
	}

	post, err := im.submitter.Submit(ctx, domain.Draft{
		Actor:   domain.OrganizationActor(f.OrganizationID),
		Content: content,
	})
	if err != nil {
		errs := []error{fmt.Errorf("submit post: %w", err)}
		if releaseErr := im.store.ReleaseItem(ctx, f.ID, key); releaseErr != nil {
			errs = append(errs, fmt.Errorf("release item: %w", releaseErr))
		}

		return false, errors.Join(errs...)
	}

	if err = im.store.CompleteItem(ctx, f.ID, key, post.ID); err != nil {
		return true, fmt.Errorf("complete item: %w", err)
	}

	return true, nil
}

func itemTime(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return *item.PublishedParsed
	case item.UpdatedParsed != nil:
		return *item.UpdatedParsed
	default:
		return time.Time{}
	}
}

// itemKey identifies an item across runs: its GUID, its link, or a hash of
// its title and description.
func itemKey(item *gofeed.Item) string {
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return "guid:" + guid
	}

	if link := strings.TrimSpace(item.Link); link != "" {
		return "link:" + link
	}

	body := strings.TrimSpace(item.Title) + "\n" + strings.TrimSpace(item.Description)
	if strings.TrimSpace(body) == "" {
		return ""
	}

	hash := sha256.Sum256([]byte(body))

	return "hash:" + hex.EncodeToString(hash[:])
}

// itemContent renders an item as post text: title, plain text body and link.
func itemContent(item *gofeed.Item) (string, error) {
	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}

	text, err := htmlToText(body)
	if err != nil {
		return "", fmt.Errorf("convert HTML: %w", err)
	}

	var parts []string
	if title := strings.TrimSpace(item.Title); title != "" {
		parts = append(parts, title)
	}

	if text != "" && text != strings.TrimSpace(item.Title) {
		parts = append(parts, truncate(text, maxContentRunes))
	}

	if len(parts) == 0 {
		return "", nil
	}

	if link := strings.TrimSpace(item.Link); link != "" {
		parts = append(parts, link)
	}

	return strings.Join(parts, "\n\n"), nil
}

func truncate(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}

	return strings.TrimSpace(string(runes[:maxRunes])) + "..."
}
