package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bazaar/internal/bot"
	"bazaar/internal/config"
	"bazaar/internal/database"
	"bazaar/internal/feed"
	"bazaar/internal/importer"
	"bazaar/internal/scheduler"
	"bazaar/internal/summarizer"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	var imp *importer.Importer
	if cfg.ImportEnabled {
		// Imported posts are not shown by any feed until it reloads.
		importComposer, composerErr := feed.NewComposer(db, nil, log)
		if composerErr != nil {
			log.ErrorContext(ctx, "Failed to create composer",
				"error", composerErr)

			return
		}
		imp = importer.New(db, importComposer, log)
	} else {
		log.InfoContext(ctx, "Feed import is disabled",
			"envVar", "IMPORT_ENABLED")
	}

	var registrar bot.FeedRegistrar
	if imp != nil {
		registrar = imp
	}

	botInst, err := bot.New(
		bot.Config{
			Token:        cfg.Token,
			AllowedUsers: cfg.AllowedUsers,
			PageSize:     cfg.PageSize,
			FetchTimeout: cfg.FetchTimeout,
		},
		db.Repositories(),
		db,
		registrar,
		bot.NewPreviewer(initOpenAISummarizer(ctx, cfg.OpenAIAPIKey, log), log),
		log,
	)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize bot",
			"error", err,
			"allowedUsersCount", len(cfg.AllowedUsers))

		return
	}
	log.InfoContext(ctx, "Bot is initialized",
		"allowedUsersCount", len(cfg.AllowedUsers),
		"pageSize", cfg.PageSize,
		"fetchTimeout", cfg.FetchTimeout)

	if imp != nil {
		sched := scheduler.New(ctx, cfg.ImportSpec, imp, log)

		if err = sched.Start(); err != nil {
			log.ErrorContext(ctx, "Failed to start scheduler",
				"error", err,
				"spec", cfg.ImportSpec)

			return
		}
		defer sched.Stop()
		log.InfoContext(ctx, "Scheduler is started",
			"spec", cfg.ImportSpec,
			"timezone", time.FixedZone(scheduler.Timezone, scheduler.TimezoneOffsetSeconds).String())
	}

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsServer = startMetricsServer(ctx, cfg.MetricsAddr, log)
	} else {
		log.InfoContext(ctx, "Metrics are disabled",
			"envVar", "METRICS_ENABLED")
	}

	go func() {
		botInst.Start(ctx)
	}()
	log.InfoContext(ctx, "Bot is started")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	log.InfoContext(ctx, "Shutdown signal is received",
		"signal", sig.String())
	cancel()

	log.InfoContext(ctx, "Exiting...",
		"signal", sig.String(),
		"uptimeSeconds", time.Since(start).Seconds())

	stopMetricsServer(metricsServer, log)

	botInst.Stop()
	log.InfoContext(ctx, "Bot is stopped",
		"uptimeSeconds", time.Since(start).Seconds())
}

func initOpenAISummarizer(ctx context.Context, apiKey string, log *slog.Logger) summarizer.Summarizer {
	if apiKey == "" {
		log.WarnContext(ctx, "OPENAI_API_KEY is missing so fallback will be used",
			"envVar", "OPENAI_API_KEY")

		return nil
	}

	s, err := summarizer.NewOpenAISummarizer(apiKey)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create OpenAI summarizer so fallback will be used",
			"error", err,
			"envVar", "OPENAI_API_KEY")

		return nil
	}

	log.InfoContext(ctx, "OpenAI summarizer is initialized",
		"provider", "openai")

	return s
}

func startMetricsServer(ctx context.Context, addr string, log *slog.Logger) *http.Server {
	if addr == "" {
		log.InfoContext(ctx, "Metrics are disabled",
			"envVar", "METRICS_ADDR")

		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "Metrics server failed",
				"error", err,
				"addr", addr)
		}
	}()

	log.InfoContext(ctx, "Metrics server is started",
		"addr", addr)

	return srv
}

func stopMetricsServer(srv *http.Server, log *slog.Logger) {
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.ErrorContext(ctx, "Failed to stop metrics server",
			"error", err)
	}
}
