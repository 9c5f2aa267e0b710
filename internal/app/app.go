package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse-server/internal/auth"
	"github.com/pulsechat/pulse-server/internal/config"
	"github.com/pulsechat/pulse-server/internal/core"
	"github.com/pulsechat/pulse-server/internal/store"
	"github.com/pulsechat/pulse-server/internal/store/mem"
	redisstore "github.com/pulsechat/pulse-server/internal/store/redis"
	"github.com/pulsechat/pulse-server/internal/store/sqlite"
	transporthttp "github.com/pulsechat/pulse-server/internal/transport/http"
)

// App wires together the chat core, stores, and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	roomStore       *sqlite.RoomStore
	presenceCloser  func() error
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	roomStore, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init room store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("room store initialized")

	var presence store.PresenceStore
	var presenceCloser func() error
	if cfg.RedisAddr != "" {
		connectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rp, err := redisstore.New(connectCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cancel()
		if err != nil {
			roomStore.Close()
			return nil, fmt.Errorf("init presence store: %w", err)
		}
		presence = rp
		presenceCloser = rp.Close
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("presence store initialized")
	} else {
		presence = mem.NewPresenceStore()
		logger.Info().Msg("presence store running in process memory")
	}

	registry := core.NewRegistry()
	cache := core.NewMembershipCache()
	pipeline := core.NewPipeline(roomStore, cache, registry, logger, cfg.MaxMessageLen, cfg.StoreTimeout)
	tracker := core.NewTracker(presence, cache, registry, logger, cfg.PresenceGrace)
	registry.SetNotifier(tracker)
	router := core.NewRouter(registry, cache, pipeline, tracker, roomStore, logger, cfg.StoreTimeout)

	verifier := auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience)
	server := transporthttp.NewServer(router, tracker, roomStore, verifier, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		roomStore:       roomStore,
		presenceCloser:  presenceCloser,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes stores and other resources.
func (a *App) cleanup() {
	if a.roomStore != nil {
		if err := a.roomStore.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close room store")
		}
	}
	if a.presenceCloser != nil {
		if err := a.presenceCloser(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close presence store")
		}
	}
}
