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

	"github.com/joho/godotenv"

	"github.com/Expl0dingBanana/aferobridge/internal/bridge"
	"github.com/Expl0dingBanana/aferobridge/internal/config"
	"github.com/Expl0dingBanana/aferobridge/internal/httpapi"
	"github.com/Expl0dingBanana/aferobridge/internal/model"
	"github.com/Expl0dingBanana/aferobridge/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		logger.Error("failed to create db directory", "err", err)
		os.Exit(1)
	}
	store, err := storage.New(ctx, cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to initialize session store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// Stored sessions win over the configured token: refresh tokens rotate,
	// so the persisted one is the newest.
	refreshToken := cfg.RefreshToken
	session, err := store.Load(ctx, cfg.Platform)
	switch {
	case err == nil && session.RefreshToken != "":
		refreshToken = session.RefreshToken
	case err != nil && !errors.Is(err, storage.ErrNoSession):
		logger.Warn("failed to load stored session", "err", err)
	}
	if refreshToken == "" {
		logger.Error("no refresh token configured; set AFERO_REFRESH_TOKEN")
		os.Exit(1)
	}

	b, err := bridge.New(bridge.Config{
		Platform:        cfg.Platform,
		RefreshToken:    refreshToken,
		PollingInterval: cfg.PollingInterval,
		DisplayUnit:     model.TemperatureUnit(cfg.DisplayUnit),
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to build bridge", "err", err)
		os.Exit(1)
	}

	if err := b.Initialize(ctx); err != nil {
		logger.Error("bridge initialization failed", "err", err)
		os.Exit(1)
	}
	saveSession(ctx, store, b, cfg.Platform, logger)
	go persistSessionLoop(ctx, store, b, cfg.Platform, logger)

	api := httpapi.New(b, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", httpServer.Addr, "platform", cfg.Platform)
	err = httpapi.RunServer(ctx, httpServer, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if waitErr := b.BlockUntilDone(shutdownCtx); waitErr != nil {
		logger.Warn("tracked work did not drain before shutdown", "err", waitErr)
	}
	saveSession(shutdownCtx, store, b, cfg.Platform, logger)
	b.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// persistSessionLoop keeps the stored refresh token current while the token
// endpoint rotates it.
func persistSessionLoop(ctx context.Context, store *storage.Store, b *bridge.Bridge, platform string, logger *slog.Logger) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	last := b.RefreshToken()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := b.RefreshToken()
			if current == "" || current == last {
				continue
			}
			saveSession(ctx, store, b, platform, logger)
			last = current
		}
	}
}

func saveSession(ctx context.Context, store *storage.Store, b *bridge.Bridge, platform string, logger *slog.Logger) {
	token := b.RefreshToken()
	if token == "" {
		return
	}
	accountID, err := b.AccountID(ctx)
	if err != nil {
		accountID = ""
	}
	if err := store.Save(ctx, storage.Session{
		Platform:     platform,
		RefreshToken: token,
		AccountID:    accountID,
	}); err != nil {
		logger.Warn("failed to persist session", "err", err)
	}
}
