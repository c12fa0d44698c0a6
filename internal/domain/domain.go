package domain

import (
	"strconv"
	"time"
)

type ActorKind string

const (
	ActorUser         ActorKind = "user"
	ActorOrganization ActorKind = "organization"
)

// Actor is the author of a post: either a user profile or an organization.
type Actor struct {
	Kind ActorKind
	ID   int64
}

func UserActor(id int64) Actor {
	return Actor{Kind: ActorUser, ID: id}
}

func OrganizationActor(id int64) Actor {
	return Actor{Kind: ActorOrganization, ID: id}
}

func (a Actor) Valid() bool {
	if a.ID == 0 {
		return false
	}

	return a.Kind == ActorUser || a.Kind == ActorOrganization
}

func (a Actor) String() string {
	return string(a.Kind) + ":" + strconv.FormatInt(a.ID, 10)
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type Post struct {
	ID           int64
	CommunityID  *int64
	TopicID      *int64
	Actor        Actor
	Content      string
	Category     string
	Region       string
	LikeCount    int64
	CommentCount int64
	ShareCount   int64
	Visibility   Visibility
	Pinned       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

type Profile struct {
	ID          int64
	DisplayName string
	Username    string
}

type Organization struct {
	ID   int64
	Name string
}

type Community struct {
	ID   int64
	Name string
}

type Topic struct {
	ID    int64
	Title string
}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaLink  MediaKind = "link"
)

type Media struct {
	ID       int64
	PostID   int64
	Kind     MediaKind
	URL      string
	Position int
}

type ReactionKind string

const ReactionLike ReactionKind = "like"

type Reaction struct {
	ViewerID  int64
	PostID    int64
	Kind      ReactionKind
	CreatedAt time.Time
}

// DecoratedPost is a Post joined with everything needed to display it.
// It is a derived view and is never persisted.
type DecoratedPost struct {
	Post
	Profile      *Profile
	Organization *Organization
	Community    *Community
	Topic        *Topic
	Media        []Media
	OwnReactions []Reaction
}

func (p *DecoratedPost) Liked() bool {
	for _, r := range p.OwnReactions {
		if r.Kind == ReactionLike {
			return true
		}
	}

	return false
}

// ActorName is the display name of the resolved actor, or empty if unresolved.
func (p *DecoratedPost) ActorName() string {
	switch {
	case p.Profile != nil:
		if p.Profile.DisplayName != "" {
			return p.Profile.DisplayName
		}
		return p.Profile.Username
	case p.Organization != nil:
		return p.Organization.Name
	default:
		return ""
	}
}

// MembershipSet holds the community ids a viewer belongs to.
type MembershipSet map[int64]struct{}

func NewMembershipSet(ids ...int64) MembershipSet {
	s := make(MembershipSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}

	return s
}

func (s MembershipSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// Filter narrows the base page query. WithoutCommunity restricts the page
// to posts with no community and is set for viewers without memberships.
type Filter struct {
	CommunityID      *int64
	TopicID          *int64
	Category         string
	Region           string
	WithoutCommunity bool
}

// Draft is a new post before it is persisted.
type Draft struct {
	Actor       Actor
	CommunityID *int64
	TopicID     *int64
	Content     string
	Category    string
	Region      string
	Media       []Media
}

type OrganizationFeed struct {
	ID             int64
	OrganizationID int64
	URL            string
	Title          string
}
