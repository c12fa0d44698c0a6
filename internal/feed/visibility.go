package feed

import "bazaar/internal/domain"

// Visible reports whether a viewer with the given memberships may see the post.
func Visible(post *domain.DecoratedPost, memberships domain.MembershipSet) bool {
	if post.CommunityID == nil {
		return true
	}

	return memberships.Contains(*post.CommunityID)
}

// FilterVisible narrows a fetched page to what the viewer may see. The page
// query cannot express "community in a dynamic set", so it fetches a
// superset and this stage removes the rest.
func FilterVisible(posts []domain.DecoratedPost, memberships domain.MembershipSet) []domain.DecoratedPost {
	out := make([]domain.DecoratedPost, 0, len(posts))
	for i := range posts {
		if Visible(&posts[i], memberships) {
			out = append(out, posts[i])
		}
	}

	return out
}

// publishable drops anything the repository should not have returned.
func publishable(post *domain.Post, filter domain.Filter) bool {
	if post.DeletedAt != nil || post.Visibility != domain.VisibilityPublic {
		return false
	}

	if filter.WithoutCommunity && post.CommunityID != nil {
		return false
	}

	return true
}
