package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskwire/taskwire-client/internal/adapters/primary/debughttp"
	"github.com/taskwire/taskwire-client/internal/adapters/secondary/rest"
	"github.com/taskwire/taskwire-client/internal/adapters/secondary/transport"
	"github.com/taskwire/taskwire-client/internal/auth"
	"github.com/taskwire/taskwire-client/internal/config"
	"github.com/taskwire/taskwire-client/internal/core/services"
	"github.com/taskwire/taskwire-client/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting client",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	// 3. Credential
	creds := auth.NewStaticTokenSource(cfg.Auth.Token)
	claims, err := auth.Inspect(cfg.Auth.Token)
	if err != nil {
		logger.Error("invalid auth token", "error", err)
		os.Exit(1)
	}

	// 4. Adapters
	ws := transport.New(transport.Config{
		URL:          cfg.Sync.URL,
		DialTimeout:  cfg.Sync.DialTimeout,
		PingInterval: cfg.Sync.PingInterval,
		PongWait:     cfg.Sync.PongWait,
		WriteTimeout: cfg.Sync.WriteTimeout,
	}, logger)

	api := rest.New(rest.Config{
		BaseURL: cfg.REST.BaseURL,
		Timeout: cfg.REST.Timeout,
	}, creds, logger)

	// 5. Session (the realtime core)
	invalidated := make(chan struct{}, 1)
	session := services.NewSession(ws, creds, api, api, claims.UserID, services.SessionConfig{
		Strict: cfg.IsDevelopment(),
		Bus: services.EventBusConfig{
			InitialBackoff: cfg.Sync.InitialBackoff,
			MaxBackoff:     cfg.Sync.MaxBackoff,
			EmitQueueSize:  cfg.Sync.EmitQueueSize,
		},
		Presence: services.PresenceCacheConfig{
			CursorTTL: cfg.Presence.CursorTTL,
			TypingTTL: cfg.Presence.TypingTTL,
		},
		Publisher: services.PresencePublisherConfig{
			Enabled:     cfg.RateLimit.Enabled,
			CursorRPS:   cfg.RateLimit.CursorRPS,
			CursorBurst: cfg.RateLimit.CursorBurst,
		},
	}, func() {
		select {
		case invalidated <- struct{}{}:
		default:
		}
	}, logger)

	ctx := context.Background()
	if err := session.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	// 6. Optional localhost debug endpoint
	var debugServer *debughttp.Server
	if cfg.Debug.Enabled {
		debugServer = debughttp.New(debughttp.Config{
			Addr:           cfg.Debug.Addr,
			AllowedOrigins: cfg.Debug.AllowedOrigins,
		}, session, logger)

		go func() {
			if err := debugServer.Start(); err != nil {
				logger.Error("debug server failed", "error", err)
			}
		}()
	}

	// 7. Run until signal or session invalidation
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case <-invalidated:
		logger.Warn("session invalidated by server, shutting down")
	}

	if debugServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := debugServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("debug server shutdown failed", "error", err)
		}
	}

	session.Close()
	logger.Info("shutdown complete")
}
