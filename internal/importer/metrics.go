package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var postsImported = promauto.NewCounter(prometheus.CounterOpts{
	Name: "importer_posts_created_total",
	Help: "Posts created from organization feed items",
})
