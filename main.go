package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	clts "github.com/Kalifa21/the-watcher/clients"
	"github.com/Kalifa21/the-watcher/config"
	"github.com/Kalifa21/the-watcher/internal/app"
	"github.com/Kalifa21/the-watcher/internal/store"
)

const (
	// loadTimeout is the maximum time to wait for loading from gist
	loadTimeout = 30 * time.Second

	// gistWatchlistFile is the gist file the gist store backend keeps
	// the watchlist document in.
	gistWatchlistFile = "watchlists.json"
)

func main() {
	// Load config from environment variables
	cfg := config.Load()

	logger, err := newLogger(cfg.IsProd)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting watcher", zap.Bool("isProd", cfg.IsProd))

	if result := cfg.Validate(); !result.Valid {
		logger.Fatal("invalid configuration", zap.String("errors", result.Error()))
	}

	logger.Info("instantiating clients")
	clients, err := clts.New(logger, cfg)
	if err != nil {
		logger.Fatal("failed to create clients", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	st, err := openStore(ctx, logger, cfg, clients)
	if err != nil {
		logger.Fatal("failed to open watchlist store", zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("failed to close watchlist store", zap.Error(err))
		}
	}()

	runner := app.NewRunner(clients, cfg, st)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}

func newLogger(isProd bool) (*zap.Logger, error) {
	if isProd {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// openStore builds the watchlist store backend selected by STORE_BACKEND.
func openStore(ctx context.Context, logger *zap.Logger, cfg *config.Config, clients *clts.Clients) (store.Store, error) {
	switch cfg.Store.Backend {
	case "file":
		return store.NewFileStore(logger, cfg.Store.FilePath)
	case "sqlite":
		return store.NewSQLiteStore(logger, cfg.Store.SQLitePath)
	case "gist":
		loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
		defer cancel()
		return store.NewGistStore(loadCtx, logger, clients.Gist, gistWatchlistFile)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
