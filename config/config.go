package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// Telegram
	Telegram TelegramConfig `json:"telegram"`

	// Discord
	Discord DiscordConfig `json:"discord"`

	// Market polling and ingestion
	Markets MarketsConfig `json:"markets"`

	// Signal detection
	Detector DetectorConfig `json:"detector"`

	// Watchlist polling
	Wallets WalletsConfig `json:"wallets"`

	// Watchlist persistence
	Store StoreConfig `json:"store"`

	// Runtime state snapshots (seen trades, cooldowns)
	State StateConfig `json:"state"`

	// GitHub Gist - env var only
	Gist GistConfig `json:"-"`

	// Polymarket API
	Polymarket PolymarketConfig `json:"polymarket"`

	// Health server
	HealthServer HealthServerConfig `json:"health_server"`
}

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	BotToken string `json:"-"` // Excluded - env var only
}

// DiscordConfig holds the optional Discord broadcast channel configuration.
type DiscordConfig struct {
	BotToken  string `json:"-"` // Excluded - env var only
	ChannelID string `json:"channel_id"`
}

// MarketsConfig holds market feed polling configuration.
type MarketsConfig struct {
	PollInterval     time.Duration `json:"poll_interval"`
	HotMarketsCount  int           `json:"hot_markets_count"`
	RefreshInterval  time.Duration `json:"refresh_interval"`
	TradeFetchLimit  int           `json:"trade_fetch_limit"`
	FetchConcurrency int           `json:"fetch_concurrency"`
	ForwardSells     bool          `json:"forward_sells"` // If false, only buy-side trades reach the window
	UseWebSocket     bool          `json:"use_websocket"` // If true, the live trade feed supplements polling
}

// DetectorConfig holds signal classification configuration.
type DetectorConfig struct {
	Window          time.Duration `json:"window"`
	ClusterMinUSD   float64       `json:"cluster_min_usd"`   // WOLF_PACK volume floor (strict >)
	SurgeMinUSD     float64       `json:"surge_min_usd"`     // VOLUME_SURGE volume floor (strict >)
	Cooldown        time.Duration `json:"cooldown"`          // Per-market alert suppression
	MinBuySellRatio float64       `json:"min_buy_sell_ratio"`
}

// WalletsConfig holds watchlist polling configuration.
type WalletsConfig struct {
	PollInterval time.Duration `json:"poll_interval"`
}

// StoreConfig selects and configures the watchlist persistence backend.
type StoreConfig struct {
	Backend    string `json:"backend"` // "file", "sqlite", or "gist"
	FilePath   string `json:"file_path"`
	SQLitePath string `json:"sqlite_path"`
}

// StateConfig holds runtime state snapshot configuration.
type StateConfig struct {
	SaveInterval  time.Duration `json:"save_interval"`
	FileName      string        `json:"file_name"`
	MaxSeenTrades int           `json:"max_seen_trades"`
}

// GistConfig holds GitHub Gist configuration.
type GistConfig struct {
	Token  string `json:"-"` // Excluded - env var only
	GistID string `json:"-"` // Excluded - env var only
}

// PolymarketConfig holds Polymarket API configuration.
type PolymarketConfig struct {
	GammaAPIURL string `json:"gamma_api_url"`
	DataAPIURL  string `json:"data_api_url"`
}

// HealthServerConfig holds health check server configuration.
type HealthServerConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Clone creates a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd:   false,
		Telegram: TelegramConfig{},
		Discord:  DiscordConfig{},
		Markets: MarketsConfig{
			PollInterval:     15 * time.Second,
			HotMarketsCount:  20,
			RefreshInterval:  10 * time.Minute,
			TradeFetchLimit:  100,
			FetchConcurrency: 5,
			ForwardSells:     false,
			UseWebSocket:     false,
		},
		Detector: DetectorConfig{
			Window:          60 * time.Second,
			ClusterMinUSD:   10000.0,
			SurgeMinUSD:     15000.0,
			Cooldown:        5 * time.Minute,
			MinBuySellRatio: 3.0,
		},
		Wallets: WalletsConfig{
			PollInterval: 15 * time.Second,
		},
		Store: StoreConfig{
			Backend:    "file",
			FilePath:   "watchlists.json",
			SQLitePath: "watcher.db",
		},
		State: StateConfig{
			SaveInterval:  10 * time.Minute,
			FileName:      "watcher_state.json",
			MaxSeenTrades: 5000,
		},
		Polymarket: PolymarketConfig{
			GammaAPIURL: "https://gamma-api.polymarket.com",
			DataAPIURL:  "https://data-api.polymarket.com",
		},
		HealthServer: HealthServerConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Load loads configuration from environment variables with defaults.
// A .env file in the working directory is consulted first; real
// environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Telegram: TelegramConfig{
			BotToken: envString("TELEGRAM_BOT_KEY", ""),
		},

		Discord: DiscordConfig{
			BotToken:  envString("DISCORD_BOT_TOKEN", ""),
			ChannelID: envString("DISCORD_CHANNEL_ID", ""),
		},

		Markets: MarketsConfig{
			PollInterval:     envDuration("MARKET_POLL_INTERVAL", 15*time.Second),
			HotMarketsCount:  envInt("HOT_MARKETS_COUNT", 20),
			RefreshInterval:  envDuration("MARKET_REFRESH_INTERVAL", 10*time.Minute),
			TradeFetchLimit:  envInt("TRADE_FETCH_LIMIT", 100),
			FetchConcurrency: envInt("MARKET_FETCH_CONCURRENCY", 5),
			ForwardSells:     envBoolDefault("MARKETS_FORWARD_SELLS", false),
			UseWebSocket:     envBoolDefault("USE_WEBSOCKET", false),
		},

		Detector: DetectorConfig{
			Window:          envDuration("DETECTOR_WINDOW", 60*time.Second),
			ClusterMinUSD:   envFloat("DETECTOR_CLUSTER_MIN_USD", 10000.0),
			SurgeMinUSD:     envFloat("DETECTOR_SURGE_MIN_USD", 15000.0),
			Cooldown:        envDuration("DETECTOR_COOLDOWN", 5*time.Minute),
			MinBuySellRatio: envFloat("DETECTOR_MIN_RATIO", 3.0),
		},

		Wallets: WalletsConfig{
			PollInterval: envDuration("WALLET_POLL_INTERVAL", 15*time.Second),
		},

		Store: StoreConfig{
			Backend:    envString("STORE_BACKEND", "file"),
			FilePath:   envString("STORE_FILE_PATH", "watchlists.json"),
			SQLitePath: envString("STORE_SQLITE_PATH", "watcher.db"),
		},

		State: StateConfig{
			SaveInterval:  envDuration("STATE_SAVE_INTERVAL", 10*time.Minute),
			FileName:      envString("STATE_FILE_NAME", "watcher_state.json"),
			MaxSeenTrades: envInt("STATE_MAX_SEEN_TRADES", 5000),
		},

		Gist: GistConfig{
			Token:  envString("GITHUB_TOKEN", ""),
			GistID: envString("STATE_GIST_ID", ""),
		},

		Polymarket: PolymarketConfig{
			GammaAPIURL: envString("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
			DataAPIURL:  envString("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
		},

		HealthServer: HealthServerConfig{
			Enabled: envBoolDefault("HEALTH_SERVER_ENABLED", true),
			Port:    envInt("HEALTH_SERVER_PORT", 8080),
		},
	}
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}
