package clients

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Kalifa21/the-watcher/clients/discord"
	"github.com/Kalifa21/the-watcher/clients/gist"
	"github.com/Kalifa21/the-watcher/clients/marketevents"
	"github.com/Kalifa21/the-watcher/clients/polymarket"
	"github.com/Kalifa21/the-watcher/clients/telegram"
	"github.com/Kalifa21/the-watcher/config"
)

// Clients bundles every external service the watcher talks to.
type Clients struct {
	Logger *zap.Logger

	Telegram     *telegram.Client
	Discord      *discord.Client
	Polymarket   *polymarket.Client
	MarketEvents *marketevents.Client // nil unless the live feed is enabled
	Gist         *gist.Client
}

// New builds all clients from config. Telegram is required; Discord and
// Gist degrade to disabled clients when unconfigured.
func New(logger *zap.Logger, cfg *config.Config) (*Clients, error) {
	telegramClient, err := telegram.NewClient(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	c := &Clients{
		Logger:     logger,
		Telegram:   telegramClient,
		Discord:    discord.NewClient(logger, cfg),
		Polymarket: polymarket.NewClient(logger, cfg),
		Gist:       gist.NewClient(logger, cfg),
	}

	// Only create the live feed client when configured to use it
	if cfg.Markets.UseWebSocket {
		c.MarketEvents = marketevents.NewClient(logger)
	}

	return c, nil
}
