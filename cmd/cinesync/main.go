package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/dukerupert/cinesync/internal/booking"
	"github.com/dukerupert/cinesync/internal/config"
	"github.com/dukerupert/cinesync/internal/database"
	"github.com/dukerupert/cinesync/internal/filmmeta"
	"github.com/dukerupert/cinesync/internal/gcal"
	"github.com/dukerupert/cinesync/internal/geocode"
	"github.com/dukerupert/cinesync/internal/gmail"
	"github.com/dukerupert/cinesync/internal/googleauth"
	"github.com/dukerupert/cinesync/internal/grammar"
	"github.com/dukerupert/cinesync/internal/handler"
	"github.com/dukerupert/cinesync/internal/logging"
	"github.com/dukerupert/cinesync/internal/pipeline"
	"github.com/dukerupert/cinesync/internal/reconcile"
	"github.com/dukerupert/cinesync/internal/schedule"
	"github.com/dukerupert/cinesync/internal/server"
	"github.com/dukerupert/cinesync/internal/store"
	"github.com/dukerupert/cinesync/internal/tmdb"
	ws "github.com/dukerupert/cinesync/internal/websocket"
)

func main() {
	configPath := flag.String("config", "cinesync.yaml", "path to the YAML config file")
	once := flag.Bool("once", false, "run one sync pass and exit")
	dryRun := flag.Bool("dry-run", false, "log calendar changes instead of applying them")
	authorize := flag.Bool("authorize", false, "run the Google OAuth consent flow and save the token")
	flag.Parse()

	if err := run(*configPath, *once, *dryRun, *authorize); err != nil {
		fmt.Fprintln(os.Stderr, "cinesync:", err)
		os.Exit(1)
	}
}

func run(configPath string, once, dryRun, authorize bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", configPath, err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	loc := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gauth := googleauth.Config{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		RedirectURL:  cfg.Gmail.RedirectURL,
		TokenFile:    cfg.Gmail.TokenFile,
	}
	if authorize {
		return googleauth.Authorize(ctx, gauth, os.Stdin, os.Stdout)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	googleClient, err := googleauth.HTTPClient(ctx, gauth)
	if err != nil {
		return fmt.Errorf("google credentials: %w", err)
	}
	mail := gmail.NewClient(googleClient,
		gmail.WithBaseURL(cfg.Gmail.BaseURL),
		gmail.WithUser(cfg.Gmail.User),
	)

	var calendar interface {
		reconcile.Store
		handler.EntrySource
	}
	switch cfg.Calendar.Backend {
	case "google":
		calendar = gcal.NewStore(googleClient, cfg.Calendar.CalendarID, gcal.WithBaseURL(cfg.Calendar.BaseURL))
	default:
		calendar = store.NewEntryStore(db)
	}

	var resolver pipeline.RuntimeResolver
	if films := filmSource(cfg); films != nil {
		resolver = filmmeta.NewResolver(films, logger.With("component", "filmmeta"))
	} else {
		logger.Warn("no TMDB api key; bookings without a runtime use the default")
	}

	var geocoder booking.Geocoder
	if gc := geocode.NewClient(cfg.Geocoding.APIKey, geocode.WithBaseURL(cfg.Geocoding.BaseURL)); gc != nil {
		geocoder = gc
	}

	grammars, err := grammar.Select(cfg.Vendors, loc)
	if err != nil {
		return err
	}

	orch := pipeline.New(pipeline.Config{
		Mailbox:         mail,
		Grammars:        grammars,
		Builder:         booking.NewBuilder(geocoder, logger.With("component", "booking")),
		Resolver:        resolver,
		Store:           calendar,
		Logger:          logger,
		LinkSources:     cfg.LinkSourceMessages,
		RemoveCancelled: cfg.RemoveCancelled,
	})

	hub := ws.NewHub(logger.With("component", "websocket"))
	runs := store.NewRunStore(db)
	runner := pipeline.NewRunner(orch, runs, hub, dryRun, logger)

	if once {
		r, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		if r.Defects > 0 {
			logger.Warn("some messages could not be parsed", "defects", r.Defects)
		}
		return nil
	}

	return serve(ctx, cfg, loc, db, calendar, runs, runner, hub, logger)
}

// filmSource returns nil when no TMDB key is configured.
func filmSource(cfg *config.Config) filmmeta.Source {
	c := tmdb.NewClient(cfg.TMDB.APIKey, tmdb.WithBaseURL(cfg.TMDB.BaseURL))
	if !c.Configured() {
		return nil
	}
	return c
}

func serve(ctx context.Context, cfg *config.Config, loc *time.Location, db handler.Pinger, entries handler.EntrySource, runs handler.RunLister, runner *pipeline.Runner, hub *ws.Hub, logger *slog.Logger) error {
	job := func(ctx context.Context) {
		if _, err := runner.Run(ctx); errors.Is(err, pipeline.ErrRunInProgress) {
			logger.Info("skipping scheduled sync; one is already running")
		}
	}

	var sched *schedule.Scheduler
	if cfg.Schedule != "" {
		var err error
		sched, err = schedule.New(cfg.Schedule, loc, job, logger)
		if err != nil {
			return err
		}
		sched.Start(ctx)
	}

	srv := server.New(server.Config{
		DB:       db,
		Entries:  entries,
		Runs:     runs,
		Syncer:   runner,
		Hub:      hub,
		Loc:      loc,
		AuthUser: basicAuthUser(cfg),
		AuthHash: basicAuthHash(cfg),
		Logger:   logger,
	})
	go srv.RateLimiter().RunCleanup(ctx, 5*time.Minute)

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cinesync listening", "addr", cfg.Listen, "backend", cfg.Calendar.Backend, "schedule", cfg.Schedule)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Catch up on anything that arrived while we were down.
	go job(ctx)

	var serveErr error
	select {
	case err := <-errCh:
		serveErr = fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}

	// The database is closed by the caller, so no pass may outlive serve.
	if sched != nil {
		sched.Stop()
	}
	runner.Stop()
	return serveErr
}

func basicAuthUser(cfg *config.Config) string {
	if cfg.BasicAuth == nil {
		return ""
	}
	return cfg.BasicAuth.Username
}

func basicAuthHash(cfg *config.Config) string {
	if cfg.BasicAuth == nil {
		return ""
	}
	return cfg.BasicAuth.PasswordHash
}
