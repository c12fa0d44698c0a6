package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"bazaar/internal/domain"
)

var errStub = errors.New("stub failure")

var baseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T {
	return &v
}

// makePost builds a public post created age minutes before baseTime.
func makePost(id int64, age int, communityID *int64, actor domain.Actor) domain.Post {
	created := baseTime.Add(-time.Duration(age) * time.Minute)

	return domain.Post{
		ID:          id,
		CommunityID: communityID,
		Actor:       actor,
		Content:     "post",
		Visibility:  domain.VisibilityPublic,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

type pageCall struct {
	filter domain.Filter
	cursor *time.Time
	limit  int
}

type stubRepos struct {
	mu sync.Mutex

	posts     []domain.Post
	fetchPage func(ctx context.Context, filter domain.Filter, cursor *time.Time, limit int) ([]domain.Post, error)
	pageCalls []pageCall

	memberships     domain.MembershipSet
	membershipErr   error
	membershipCalls int

	profiles      map[int64]domain.Profile
	organizations map[int64]domain.Organization
	communities   map[int64]domain.Community
	topics        map[int64]domain.Topic
	media         map[int64][]domain.Media
	reactions     map[int64][]domain.Reaction

	failing map[string]error
	lookups map[string][][]int64
	// beforeLookup runs at the start of every secondary lookup.
	beforeLookup func(source string)

	drafts    []domain.Draft
	createErr error

	reactionErr error
	added       []int64
	removed     []int64
}

func newStubRepos(posts ...domain.Post) *stubRepos {
	sorted := slices.Clone(posts)
	slices.SortStableFunc(sorted, func(a, b domain.Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return &stubRepos{
		posts:   sorted,
		failing: make(map[string]error),
		lookups: make(map[string][][]int64),
	}
}

func (s *stubRepos) repositories() Repositories {
	return Repositories{
		Posts:         s,
		Memberships:   s,
		Profiles:      s,
		Organizations: s,
		Communities:   s,
		Topics:        s,
		Media:         s,
		Reactions:     s,
	}
}

func (s *stubRepos) FetchPage(
	ctx context.Context,
	filter domain.Filter,
	cursor *time.Time,
	limit int,
) ([]domain.Post, error) {
	s.mu.Lock()
	s.pageCalls = append(s.pageCalls, pageCall{filter: filter, cursor: cursor, limit: limit})
	fetchPage := s.fetchPage
	s.mu.Unlock()

	if fetchPage != nil {
		return fetchPage(ctx, filter, cursor, limit)
	}

	return s.defaultPage(filter, cursor, limit), nil
}

func (s *stubRepos) defaultPage(filter domain.Filter, cursor *time.Time, limit int) []domain.Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Post
	for _, p := range s.posts {
		if len(out) == limit {
			break
		}

		if p.DeletedAt != nil || p.Visibility != domain.VisibilityPublic {
			continue
		}

		if cursor != nil && !p.CreatedAt.Before(*cursor) {
			continue
		}

		if filter.WithoutCommunity && p.CommunityID != nil {
			continue
		}

		if filter.CommunityID != nil && (p.CommunityID == nil || *p.CommunityID != *filter.CommunityID) {
			continue
		}

		out = append(out, p)
	}

	return out
}

func (s *stubRepos) lastPageCall() pageCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pageCalls[len(s.pageCalls)-1]
}

func (s *stubRepos) CreatePost(_ context.Context, draft domain.Draft) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drafts = append(s.drafts, draft)
	if s.createErr != nil {
		return domain.Post{}, s.createErr
	}

	post := domain.Post{
		ID:          int64(1000 + len(s.drafts)),
		CommunityID: draft.CommunityID,
		Actor:       draft.Actor,
		Content:     draft.Content,
		Visibility:  domain.VisibilityPublic,
		CreatedAt:   baseTime.Add(time.Duration(len(s.drafts)) * time.Minute),
	}
	s.posts = append([]domain.Post{post}, s.posts...)

	return post, nil
}

func (s *stubRepos) MembershipsFor(_ context.Context, _ int64) (domain.MembershipSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.membershipCalls++
	if s.membershipErr != nil {
		return nil, s.membershipErr
	}

	return s.memberships, nil
}

func (s *stubRepos) record(source string, ids []int64) error {
	if s.beforeLookup != nil {
		s.beforeLookup(source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups[source] = append(s.lookups[source], slices.Clone(ids))

	return s.failing[source]
}

func (s *stubRepos) lookupCount(source string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.lookups[source])
}

func (s *stubRepos) ProfilesByIDs(_ context.Context, ids []int64) (map[int64]domain.Profile, error) {
	if err := s.record(sourceProfiles, ids); err != nil {
		return nil, err
	}

	return s.profiles, nil
}

func (s *stubRepos) OrganizationsByIDs(_ context.Context, ids []int64) (map[int64]domain.Organization, error) {
	if err := s.record(sourceOrganizations, ids); err != nil {
		return nil, err
	}

	return s.organizations, nil
}

func (s *stubRepos) CommunitiesByIDs(_ context.Context, ids []int64) (map[int64]domain.Community, error) {
	if err := s.record(sourceCommunities, ids); err != nil {
		return nil, err
	}

	return s.communities, nil
}

func (s *stubRepos) TopicsByIDs(_ context.Context, ids []int64) (map[int64]domain.Topic, error) {
	if err := s.record(sourceTopics, ids); err != nil {
		return nil, err
	}

	return s.topics, nil
}

func (s *stubRepos) MediaByPostIDs(_ context.Context, ids []int64) (map[int64][]domain.Media, error) {
	if err := s.record(sourceMedia, ids); err != nil {
		return nil, err
	}

	return s.media, nil
}

func (s *stubRepos) OwnReactionsByPostIDs(
	_ context.Context,
	_ int64,
	ids []int64,
) (map[int64][]domain.Reaction, error) {
	if err := s.record(sourceReactions, ids); err != nil {
		return nil, err
	}

	return s.reactions, nil
}

func (s *stubRepos) AddReaction(_ context.Context, _ int64, postID int64, _ domain.ReactionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reactionErr != nil {
		return s.reactionErr
	}
	s.added = append(s.added, postID)

	return nil
}

func (s *stubRepos) RemoveReaction(_ context.Context, _ int64, postID int64, _ domain.ReactionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reactionErr != nil {
		return s.reactionErr
	}
	s.removed = append(s.removed, postID)

	return nil
}

func postIDs(posts []domain.DecoratedPost) []int64 {
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}

	return ids
}

func decorated(posts ...domain.Post) []domain.DecoratedPost {
	return undecorated(posts)
}
