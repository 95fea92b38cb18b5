package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bluefermion/reviews/internal/cache"
	"github.com/bluefermion/reviews/internal/enrich"
	"github.com/bluefermion/reviews/internal/events"
	"github.com/bluefermion/reviews/internal/handler"
	"github.com/bluefermion/reviews/internal/logger"
	"github.com/bluefermion/reviews/internal/middleware"
	"github.com/bluefermion/reviews/internal/repository"
	"github.com/bluefermion/reviews/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the HTTP server. Migrations are applied on startup. GeoIP lookups,
NATS events and OTLP export are enabled only when configured.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	// -------------------------------------------------------------------------
	// 1. INFRASTRUCTURE
	// -------------------------------------------------------------------------
	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Logging.Service, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()

	repo, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	log.Info("database ready", "driver", cfg.Database.Driver)

	settings, err := cache.NewSettings(repo, cfg.Cache.MaxItems, cfg.Cache.TTL)
	if err != nil {
		return fmt.Errorf("settings cache: %w", err)
	}
	defer settings.Close()

	var geo enrich.GeoLookup
	if cfg.GeoIP.DBPath != "" {
		reader, err := enrich.OpenGeoIP(cfg.GeoIP.DBPath)
		if err != nil {
			return err
		}
		defer reader.Close()
		geo = reader
		log.Info("geoip enabled", "path", cfg.GeoIP.DBPath)
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(ctx, cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.Subject)
		if err != nil {
			return err
		}
		publisher = nc
		log.Info("review events enabled", "stream", cfg.NATS.Stream, "subject", cfg.NATS.Subject)
	}
	defer publisher.Close()

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// -------------------------------------------------------------------------
	// 2. HTTP
	// -------------------------------------------------------------------------
	h, err := handler.New(handler.Deps{
		Store:    repo,
		Settings: settings,
		Enricher: enrich.New(geo, log),
		Events:   publisher,
		Metrics:  metrics,
		Log:      log,
	}, handler.Options{
		Service:            cfg.Logging.Service,
		Version:            version,
		PublicURL:          cfg.Server.PublicURL,
		SubmissionEndpoint: cfg.SubmissionEndpoint(),
		WidgetAPIKey:       cfg.Widget.APIKey,
		SubmitTimeout:      cfg.Widget.SubmitTimeout,
		JWTSecret:          []byte(cfg.Auth.JWTSecret),
	})
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is not set, dashboard API will reject every request")
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h.Routes(limiter),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting",
			"addr", srv.Addr,
			"public_url", cfg.Server.PublicURL,
			"embed_script", cfg.Server.PublicURL+"/embed.js",
			"version", version,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
