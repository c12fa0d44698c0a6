package feed

import (
	"context"
	"log/slog"

	"bazaar/internal/domain"

	"golang.org/x/sync/errgroup"
)

const (
	sourceProfiles      = "profiles"
	sourceOrganizations = "organizations"
	sourceCommunities   = "communities"
	sourceTopics        = "topics"
	sourceMedia         = "media"
	sourceReactions     = "reactions"
)

// Joiner decorates raw posts with records from the secondary repositories.
type Joiner struct {
	repos Repositories
	log   *slog.Logger
}

func NewJoiner(repos Repositories, log *slog.Logger) *Joiner {
	return &Joiner{repos: repos, log: log}
}

type pageRefs struct {
	users         []int64
	organizations []int64
	communities   []int64
	topics        []int64
	posts         []int64
}

func collectRefs(page []domain.Post) pageRefs {
	var refs pageRefs

	seenUsers := make(map[int64]struct{})
	seenOrgs := make(map[int64]struct{})
	seenCommunities := make(map[int64]struct{})
	seenTopics := make(map[int64]struct{})
	seenPosts := make(map[int64]struct{}, len(page))

	add := func(ids []int64, seen map[int64]struct{}, id int64) []int64 {
		if _, ok := seen[id]; ok {
			return ids
		}
		seen[id] = struct{}{}

		return append(ids, id)
	}

	for _, p := range page {
		switch p.Actor.Kind {
		case domain.ActorUser:
			refs.users = add(refs.users, seenUsers, p.Actor.ID)
		case domain.ActorOrganization:
			refs.organizations = add(refs.organizations, seenOrgs, p.Actor.ID)
		}

		if p.CommunityID != nil {
			refs.communities = add(refs.communities, seenCommunities, *p.CommunityID)
		}

		if p.TopicID != nil {
			refs.topics = add(refs.topics, seenTopics, *p.TopicID)
		}

		refs.posts = add(refs.posts, seenPosts, p.ID)
	}

	return refs
}

type lookups struct {
	profiles      map[int64]domain.Profile
	organizations map[int64]domain.Organization
	communities   map[int64]domain.Community
	topics        map[int64]domain.Topic
	media         map[int64][]domain.Media
	reactions     map[int64][]domain.Reaction
}

// Decorate resolves every secondary dimension of page concurrently. A failed
// lookup leaves its dimension empty and never fails the page. Lookups with
// no ids are not issued.
func (j *Joiner) Decorate(
	ctx context.Context,
	page []domain.Post,
	viewerID int64,
) []domain.DecoratedPost {
	refs := collectRefs(page)

	var res lookups
	var g errgroup.Group

	if len(refs.users) != 0 {
		g.Go(func() error {
			res.profiles = lookup(ctx, j, sourceProfiles, func() (map[int64]domain.Profile, error) {
				return j.repos.Profiles.ProfilesByIDs(ctx, refs.users)
			})
			return nil
		})
	}

	if len(refs.organizations) != 0 {
		g.Go(func() error {
			res.organizations = lookup(ctx, j, sourceOrganizations, func() (map[int64]domain.Organization, error) {
				return j.repos.Organizations.OrganizationsByIDs(ctx, refs.organizations)
			})
			return nil
		})
	}

	if len(refs.communities) != 0 {
		g.Go(func() error {
			res.communities = lookup(ctx, j, sourceCommunities, func() (map[int64]domain.Community, error) {
				return j.repos.Communities.CommunitiesByIDs(ctx, refs.communities)
			})
			return nil
		})
	}

	if len(refs.topics) != 0 {
		g.Go(func() error {
			res.topics = lookup(ctx, j, sourceTopics, func() (map[int64]domain.Topic, error) {
				return j.repos.Topics.TopicsByIDs(ctx, refs.topics)
			})
			return nil
		})
	}

	if len(refs.posts) != 0 {
		g.Go(func() error {
			res.media = lookup(ctx, j, sourceMedia, func() (map[int64][]domain.Media, error) {
				return j.repos.Media.MediaByPostIDs(ctx, refs.posts)
			})
			return nil
		})

		g.Go(func() error {
			res.reactions = lookup(ctx, j, sourceReactions, func() (map[int64][]domain.Reaction, error) {
				return j.repos.Reactions.OwnReactionsByPostIDs(ctx, viewerID, refs.posts)
			})
			return nil
		})
	}

	_ = g.Wait()

	out := make([]domain.DecoratedPost, 0, len(page))
	for _, p := range page {
		out = append(out, res.decorate(p))
	}

	return out
}

func lookup[V any](
	ctx context.Context,
	j *Joiner,
	source string,
	fn func() (map[int64]V, error),
) map[int64]V {
	m, err := fn()
	if err != nil {
		if ctx.Err() != nil {
			j.log.DebugContext(ctx, "Enrichment lookup is cancelled",
				"error", err,
				"source", source)

			return nil
		}

		enrichmentFailures.WithLabelValues(source).Inc()
		j.log.WarnContext(ctx, "Enrichment lookup failed, using empty result",
			"error", err,
			"source", source)

		return nil
	}

	return m
}

func (l *lookups) decorate(p domain.Post) domain.DecoratedPost {
	d := domain.DecoratedPost{Post: p}

	switch p.Actor.Kind {
	case domain.ActorUser:
		if profile, ok := l.profiles[p.Actor.ID]; ok {
			d.Profile = &profile
		}
	case domain.ActorOrganization:
		if org, ok := l.organizations[p.Actor.ID]; ok {
			d.Organization = &org
		}
	}

	if p.CommunityID != nil {
		if c, ok := l.communities[*p.CommunityID]; ok {
			d.Community = &c
		}
	}

	if p.TopicID != nil {
		if t, ok := l.topics[*p.TopicID]; ok {
			d.Topic = &t
		}
	}

	d.Media = append([]domain.Media{}, l.media[p.ID]...)
	d.OwnReactions = append([]domain.Reaction{}, l.reactions[p.ID]...)

	return d
}

// undecorated wraps raw posts without any secondary data.
func undecorated(page []domain.Post) []domain.DecoratedPost {
	out := make([]domain.DecoratedPost, 0, len(page))
	for _, p := range page {
		out = append(out, domain.DecoratedPost{Post: p})
	}

	return out
}
