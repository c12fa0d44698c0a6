package feed

import (
	"context"
	"time"

	"bazaar/internal/domain"
)

// PostRepository returns pages ordered by creation time, newest first.
// When cursor is set, every returned post was created strictly before it.
// Only public, non-deleted posts are returned.
type PostRepository interface {
	FetchPage(ctx context.Context, filter domain.Filter, cursor *time.Time, limit int) ([]domain.Post, error)
	CreatePost(ctx context.Context, draft domain.Draft) (domain.Post, error)
}

type MembershipRepository interface {
	MembershipsFor(ctx context.Context, viewerID int64) (domain.MembershipSet, error)
}

// The ByIDs lookups must not be called with an empty id set.

type ProfileRepository interface {
	ProfilesByIDs(ctx context.Context, ids []int64) (map[int64]domain.Profile, error)
}

type OrganizationRepository interface {
	OrganizationsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Organization, error)
}

type CommunityRepository interface {
	CommunitiesByIDs(ctx context.Context, ids []int64) (map[int64]domain.Community, error)
}

type TopicRepository interface {
	TopicsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Topic, error)
}

type MediaRepository interface {
	MediaByPostIDs(ctx context.Context, postIDs []int64) (map[int64][]domain.Media, error)
}

type ReactionRepository interface {
	OwnReactionsByPostIDs(ctx context.Context, viewerID int64, postIDs []int64) (map[int64][]domain.Reaction, error)
	AddReaction(ctx context.Context, viewerID int64, postID int64, kind domain.ReactionKind) error
	RemoveReaction(ctx context.Context, viewerID int64, postID int64, kind domain.ReactionKind) error
}

// Repositories bundles the storage collaborators of a feed.
type Repositories struct {
	Posts         PostRepository
	Memberships   MembershipRepository
	Profiles      ProfileRepository
	Organizations OrganizationRepository
	Communities   CommunityRepository
	Topics        TopicRepository
	Media         MediaRepository
	Reactions     ReactionRepository
}
