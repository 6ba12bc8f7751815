package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/ThreatBoard/internal/config"
	"github.com/JonMunkholm/ThreatBoard/internal/core"
	"github.com/JonMunkholm/ThreatBoard/internal/database"
	"github.com/JonMunkholm/ThreatBoard/internal/events"
	"github.com/JonMunkholm/ThreatBoard/internal/logging"
	"github.com/JonMunkholm/ThreatBoard/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	// Analysis history: PostgreSQL when configured, memory otherwise
	var history core.HistoryStore
	var repo *database.HistoryRepo
	if cfg.Database.Enabled() {
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		repo = database.NewHistoryRepo(pool)
		if err := repo.Migrate(ctx); err != nil {
			slog.Error("failed to migrate history schema", "error", err)
			os.Exit(1)
		}
		history = repo
		slog.Info("analysis history stored in postgres")
	} else {
		slog.Info("analysis history kept in memory", "capacity", cfg.History.Capacity)
	}

	// Optional event publishing
	var publisher core.Publisher
	var bus *events.NATSPublisher
	if cfg.Events.NATSURL != "" {
		bus, err = events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			slog.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		publisher = bus
	}

	service, err := core.NewService(core.ServiceConfig{
		MaxFileSize:          cfg.Upload.MaxFileSize,
		MaxConcurrentUploads: cfg.Upload.MaxConcurrent,
		MaxUploadWait:        cfg.Upload.MaxWaitTime,
		SessionTTL:           cfg.Session.TTL,
		HistoryCapacity:      cfg.History.Capacity,
	}, history, publisher)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(service, cfg)
	if repo != nil {
		server.AddHealthCheck("database", web.CheckFunc(repo.Ping))
	}
	if bus != nil {
		server.AddHealthCheck("nats", web.CheckFunc(func(context.Context) error {
			if !bus.Connected() {
				return errors.New("nats disconnected")
			}
			return nil
		}))
	}

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartMaintenance(jobCtx, core.MaintenanceConfig{
		SessionSweepInterval: cfg.Session.SweepInterval,
		HistoryRetention:     cfg.History.Retention(),
		HistoryCheckInterval: cfg.History.CheckInterval,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for in-flight parses to complete (with timeout)
		if status := service.UploadLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
			if err := service.WaitForUploads(shutdownCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			} else {
				slog.Info("all uploads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		return
	}
	<-done

	if bus != nil {
		stats := bus.Stats()
		slog.Info("event publisher closed", "published", stats.Published, "failed", stats.Failed)
	}
}
