package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feed_sessions_total",
	Help: "Number of feed fetch sessions by outcome",
}, []string{"outcome"})

var sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "feed_session_duration_seconds",
	Help:    "Duration of feed fetch sessions",
	Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
})

var enrichmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feed_enrichment_failures_total",
	Help: "Number of enrichment lookups that failed and degraded to empty",
}, []string{"source"})

var postsFiltered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feed_posts_filtered_total",
	Help: "Number of fetched posts dropped by the visibility filter",
})

var reactionToggles = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feed_reaction_toggles_total",
	Help: "Number of reaction toggles by action",
}, []string{"action"})
