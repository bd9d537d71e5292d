// Command moodtunes runs the MoodTunes web application.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-moodtunes/internal/auth"
	"github.com/justestif/go-moodtunes/internal/backend"
	"github.com/justestif/go-moodtunes/internal/config"
	"github.com/justestif/go-moodtunes/internal/db"
	"github.com/justestif/go-moodtunes/internal/detection"
	"github.com/justestif/go-moodtunes/internal/genres"
	"github.com/justestif/go-moodtunes/internal/logging"
	"github.com/justestif/go-moodtunes/internal/metrics"
	"github.com/justestif/go-moodtunes/internal/mood"
	"github.com/justestif/go-moodtunes/internal/pipeline"
	"github.com/justestif/go-moodtunes/internal/playlist"
	"github.com/justestif/go-moodtunes/internal/recommend"
	"github.com/justestif/go-moodtunes/internal/resilience"
	"github.com/justestif/go-moodtunes/internal/session"
	"github.com/justestif/go-moodtunes/internal/spotify"
	"github.com/justestif/go-moodtunes/internal/uploads"
	"github.com/justestif/go-moodtunes/internal/web"
	webfs "github.com/justestif/go-moodtunes/web"
)

const serviceName = "moodtunes"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	profiles, err := cfg.Profiles()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(serviceName)

	// Database is optional; without it sessions fall back to files or memory
	// and saved playlists are not listed.
	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy(), resilience.WithLogger(logger))
	api := backend.New(cfg.BackendURL,
		backend.WithTimeout(cfg.RequestTimeout),
		backend.WithToken(cfg.BackendToken),
		backend.WithExecutor(executor),
		backend.WithLogger(logger),
	)
	lookup := genres.New(api, profiles.Genres(),
		genres.WithLoadTimeout(cfg.RequestTimeout),
		genres.WithLogger(logger),
	)

	detector, err := newDetector(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var uploader pipeline.Uploader
	if cfg.UploadCaptures {
		queue := uploads.New(ctx, api,
			uploads.WithTimeout(cfg.RequestTimeout),
			uploads.WithRecorder(m),
			uploads.WithLogger(logger),
		)
		defer queue.Close()
		uploader = queue
	}

	supported := profiles.Set()
	caps := pipeline.Capabilities{ManualOverride: cfg.ManualOverride, ErrorOverlay: cfg.ErrorOverlay}

	build := func(store session.Store) *pipeline.Session {
		music := spotify.New(store, spotify.WithTimeout(cfg.RequestTimeout))

		persistOpts := []playlist.Option{
			playlist.WithExecutor(executor),
			playlist.WithLogger(logger),
		}
		var history pipeline.History
		if database != nil {
			persistOpts = append(persistOpts, playlist.WithRecorder(playlist.NewDBRecorder(database.Playlists())))
			history = database.Playlists()
		}

		opts := []pipeline.Option{
			pipeline.WithCapabilities(caps),
			pipeline.WithScanOptions(mood.WithInterval(cfg.ScanInterval), mood.WithWindow(cfg.ScanWindow)),
			pipeline.WithRecorder(m),
			pipeline.WithLogger(logger),
		}
		if uploader != nil {
			opts = append(opts, pipeline.WithUploader(uploader))
		}

		return pipeline.New(pipeline.Components{
			Store:    store,
			Detector: detector,
			Resolver: mood.NewResolver(supported,
				mood.WithStrategy(cfg.Strategy),
				mood.WithThreshold(cfg.Threshold),
			),
			Profiles: profiles,
			Genres:   lookup,
			Fetcher: recommend.NewFetcher(music, api, store,
				recommend.WithRecorder(m),
				recommend.WithLogger(logger),
			),
			Persister: playlist.NewPersister(music, store, persistOpts...),
			Account:   music,
			History:   history,
		}, opts...)
	}

	sessions := web.NewSessionManager(sessionProvider(cfg, database), build,
		web.WithSessionLogger(logger),
	)

	templates, err := webfs.Templates()
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}
	static, err := webfs.Static()
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:           cfg.Addr,
		TemplatesFS:    templates,
		StaticFS:       static,
		Auth:           auth.New(cfg.ClientID, cfg.RedirectURI),
		Sessions:       sessions,
		Profiles:       profiles,
		Backend:        api,
		Metrics:        m,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	if database != nil {
		g.Go(func() error {
			purgeExpiredSessions(gctx, database.Sessions(), logger)
			return nil
		})
	}
	return g.Wait()
}

// newDetector connects the inference sidecar and, when a cascade is
// configured, the pigo prefilter. The model loads in the background.
func newDetector(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*detection.Adapter, error) {
	opts := []detection.Option{detection.WithLogger(logger)}
	if cfg.PigoCascade != "" {
		pre, err := detection.LoadPigoPrefilter(cfg.PigoCascade)
		if err != nil {
			return nil, fmt.Errorf("loading face cascade: %w", err)
		}
		opts = append(opts, detection.WithPrefilter(pre))
	}

	adapter := detection.NewAdapter(detection.NewSidecarClient(cfg.InferenceSocket, cfg.RequestTimeout), opts...)
	adapter.Start(ctx)
	return adapter, nil
}

func sessionProvider(cfg *config.Config, database *db.DB) session.Provider {
	switch {
	case database != nil:
		return session.DBProvider{Rows: database.Sessions(), TTL: 24 * time.Hour}
	case cfg.SessionDir != "":
		return session.FileProvider{Dir: cfg.SessionDir}
	default:
		return session.MemoryProvider{}
	}
}

func purgeExpiredSessions(ctx context.Context, repo *db.SessionRepository, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("session_purge_failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("sessions_purged", "count", n)
			}
		}
	}
}
