package database

import "bazaar/internal/feed"

// Repositories exposes the database as every repository the feed core reads.
func (d *Database) Repositories() feed.Repositories {
	return feed.Repositories{
		Posts:         d,
		Memberships:   d,
		Profiles:      d,
		Organizations: d,
		Communities:   d,
		Topics:        d,
		Media:         d,
		Reactions:     d,
	}
}
