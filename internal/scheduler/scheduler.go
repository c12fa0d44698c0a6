package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0
	importTimeout         = 15 * time.Minute
)

// Importer imports new organization feed items and reports how many posts
// it created.
type Importer interface {
	ImportAll(ctx context.Context) (int, error)
}

type Scheduler struct {
	ctx      context.Context
	cron     *cron.Cron
	spec     string
	importer Importer
	log      *slog.Logger
}

func New(ctx context.Context, spec string, importer Importer, log *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)))

	return &Scheduler{
		ctx:      ctx,
		cron:     c,
		spec:     spec,
		importer: importer,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.importFeeds); err != nil {
		return fmt.Errorf("add import job (spec = %s): %w", s.spec, err)
	}

	s.cron.Start()

	return nil
}

// Stop stops the cron and waits for a running import to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) importFeeds() {
	ctx, cancel := context.WithTimeout(s.ctx, importTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	started := time.Now()

	created, err := s.importer.ImportAll(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to import organization feeds",
			"error", err,
			"createdPosts", created,
			"duration", time.Since(started))

		return
	}

	s.log.InfoContext(ctx, "Organization feeds are imported",
		"createdPosts", created,
		"duration", time.Since(started))
}
