package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bazaar/internal/domain"

	dto "github.com/prometheus/client_model/go"
)

func joinerFixture() (*stubRepos, []domain.Post) {
	userPost := makePost(1, 1, ptr(int64(10)), domain.UserActor(100))
	userPost.TopicID = ptr(int64(50))
	orgPost := makePost(2, 2, nil, domain.OrganizationActor(200))
	orphanPost := makePost(3, 3, ptr(int64(99)), domain.UserActor(101))

	repos := newStubRepos(userPost, orgPost, orphanPost)
	repos.profiles = map[int64]domain.Profile{100: {ID: 100, DisplayName: "Ann"}}
	repos.organizations = map[int64]domain.Organization{200: {ID: 200, Name: "Co-op"}}
	repos.communities = map[int64]domain.Community{10: {ID: 10, Name: "Garden"}}
	repos.topics = map[int64]domain.Topic{50: {ID: 50, Title: "Seeds"}}
	repos.media = map[int64][]domain.Media{
		1: {{ID: 1, PostID: 1, Kind: domain.MediaImage, URL: "https://img/1"}},
	}
	repos.reactions = map[int64][]domain.Reaction{
		2: {{ViewerID: 7, PostID: 2, Kind: domain.ReactionLike}},
	}

	return repos, []domain.Post{userPost, orgPost, orphanPost}
}

func TestJoinerDecoratesEveryDimension(t *testing.T) {
	repos, page := joinerFixture()
	joiner := NewJoiner(repos.repositories(), discardLogger())

	got := joiner.Decorate(context.Background(), page, 7)
	if len(got) != 3 {
		t.Fatalf("expected 3 decorated posts, got %d", len(got))
	}

	user, org, orphan := got[0], got[1], got[2]

	if user.Profile == nil || user.Profile.DisplayName != "Ann" || user.Organization != nil {
		t.Fatalf("expected user actor resolved from profiles, got %+v / %+v", user.Profile, user.Organization)
	}
	if user.Community == nil || user.Community.Name != "Garden" {
		t.Fatalf("expected community to be resolved, got %+v", user.Community)
	}
	if user.Topic == nil || user.Topic.Title != "Seeds" {
		t.Fatalf("expected topic to be resolved, got %+v", user.Topic)
	}
	if len(user.Media) != 1 || len(user.OwnReactions) != 0 {
		t.Fatalf("unexpected media/reactions for user post: %d/%d", len(user.Media), len(user.OwnReactions))
	}

	if org.Organization == nil || org.Organization.Name != "Co-op" || org.Profile != nil {
		t.Fatalf("expected organization actor resolved, got %+v / %+v", org.Organization, org.Profile)
	}
	if !org.Liked() {
		t.Fatalf("expected viewer reaction on organization post")
	}

	if orphan.Profile != nil || orphan.Community != nil {
		t.Fatalf("expected unresolved references to stay absent, got %+v / %+v", orphan.Profile, orphan.Community)
	}
	if orphan.Media == nil || len(orphan.Media) != 0 {
		t.Fatalf("expected empty media list, got %v", orphan.Media)
	}
}

func TestJoinerSkipsLookupsWithoutIDs(t *testing.T) {
	post := makePost(1, 1, nil, domain.UserActor(100))
	repos := newStubRepos(post)
	joiner := NewJoiner(repos.repositories(), discardLogger())

	joiner.Decorate(context.Background(), []domain.Post{post}, 7)

	for _, source := range []string{sourceOrganizations, sourceCommunities, sourceTopics} {
		if n := repos.lookupCount(source); n != 0 {
			t.Fatalf("expected no %s lookup for empty id set, got %d", source, n)
		}
	}

	for _, source := range []string{sourceProfiles, sourceMedia, sourceReactions} {
		if n := repos.lookupCount(source); n != 1 {
			t.Fatalf("expected one %s lookup, got %d", source, n)
		}
	}

	repos.mu.Lock()
	defer repos.mu.Unlock()
	if ids := repos.lookups[sourceProfiles][0]; len(ids) != 1 || ids[0] != 100 {
		t.Fatalf("unexpected profile ids: %v", ids)
	}
}

func TestJoinerDeduplicatesIDs(t *testing.T) {
	a := makePost(1, 1, ptr(int64(10)), domain.UserActor(100))
	b := makePost(2, 2, ptr(int64(10)), domain.UserActor(100))
	repos := newStubRepos(a, b)
	joiner := NewJoiner(repos.repositories(), discardLogger())

	joiner.Decorate(context.Background(), []domain.Post{a, b}, 7)

	repos.mu.Lock()
	defer repos.mu.Unlock()
	if ids := repos.lookups[sourceCommunities][0]; len(ids) != 1 {
		t.Fatalf("expected distinct community ids, got %v", ids)
	}
	if ids := repos.lookups[sourceMedia][0]; len(ids) != 2 {
		t.Fatalf("expected both post ids, got %v", ids)
	}
}

func TestJoinerIsolatesFailedLookups(t *testing.T) {
	repos, page := joinerFixture()
	repos.failing[sourceProfiles] = errStub
	repos.failing[sourceMedia] = errStub
	joiner := NewJoiner(repos.repositories(), discardLogger())

	got := joiner.Decorate(context.Background(), page, 7)
	if len(got) != len(page) {
		t.Fatalf("expected page to survive failed lookups, got %d posts", len(got))
	}

	if got[0].Profile != nil {
		t.Fatalf("expected failed profile lookup to degrade to absent")
	}
	if len(got[0].Media) != 0 {
		t.Fatalf("expected failed media lookup to degrade to empty")
	}
	if got[0].Community == nil || got[1].Organization == nil {
		t.Fatalf("expected successful lookups to still decorate")
	}
}

func enrichmentFailureCount(t *testing.T, source string) float64 {
	t.Helper()

	var m dto.Metric
	if err := enrichmentFailures.WithLabelValues(source).Write(&m); err != nil {
		t.Fatalf("read metric: %v", err)
	}

	return m.GetCounter().GetValue()
}

func TestJoinerCountsOnlyFailuresOfLiveContext(t *testing.T) {
	repos, page := joinerFixture()
	repos.failing[sourceTopics] = errStub
	joiner := NewJoiner(repos.repositories(), discardLogger())

	before := enrichmentFailureCount(t, sourceTopics)
	joiner.Decorate(context.Background(), page, 7)

	if got := enrichmentFailureCount(t, sourceTopics); got != before+1 {
		t.Fatalf("expected failed lookup to be counted once, got %v -> %v", before, got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repos.failing[sourceTopics] = context.Canceled

	before = enrichmentFailureCount(t, sourceTopics)
	got := joiner.Decorate(ctx, page, 7)

	if len(got) != len(page) {
		t.Fatalf("expected page to survive cancelled lookups, got %d posts", len(got))
	}

	if after := enrichmentFailureCount(t, sourceTopics); after != before {
		t.Fatalf("cancelled lookup should not be counted, got %v -> %v", before, after)
	}
}

func TestJoinerIssuesLookupsConcurrently(t *testing.T) {
	repos, page := joinerFixture()

	const sources = 6
	var started atomic.Int32
	all := make(chan struct{})
	var once sync.Once
	var sequential atomic.Bool

	repos.beforeLookup = func(string) {
		if started.Add(1) == sources {
			once.Do(func() { close(all) })
		}

		select {
		case <-all:
		case <-time.After(2 * time.Second):
			sequential.Store(true)
		}
	}

	joiner := NewJoiner(repos.repositories(), discardLogger())
	joiner.Decorate(context.Background(), page, 7)

	if sequential.Load() {
		t.Fatalf("expected all %d lookups to be in flight at once", sources)
	}
}
