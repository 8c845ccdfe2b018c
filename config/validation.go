package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Error returns all validation errors joined into a single string.
func (r ValidationResult) Error() string {
	if r.Valid {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	// Telegram validation
	errors = append(errors, validateTelegram(&c.Telegram)...)

	// Markets validation
	errors = append(errors, validateMarkets(&c.Markets)...)

	// Detector validation
	errors = append(errors, validateDetector(&c.Detector)...)

	// Wallets validation
	errors = append(errors, validateWallets(&c.Wallets)...)

	// Store validation
	errors = append(errors, validateStore(&c.Store, &c.Gist)...)

	// State validation
	errors = append(errors, validateState(&c.State)...)

	// Polymarket validation
	errors = append(errors, validatePolymarket(&c.Polymarket)...)

	// HealthServer validation
	errors = append(errors, validateHealthServer(&c.HealthServer)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateTelegram(tc *TelegramConfig) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(tc.BotToken) == "" {
		errors = append(errors, ValidationError{
			Field:   "telegram.bot_token",
			Message: "is required (set TELEGRAM_BOT_KEY)",
		})
	}

	return errors
}

func validateMarkets(mc *MarketsConfig) []ValidationError {
	var errors []ValidationError

	if mc.PollInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "markets.poll_interval",
			Message: "must be at least 1 second",
		})
	}

	if mc.HotMarketsCount < 1 {
		errors = append(errors, ValidationError{
			Field:   "markets.hot_markets_count",
			Message: "must be at least 1",
		})
	}

	if mc.RefreshInterval < 10*time.Second {
		errors = append(errors, ValidationError{
			Field:   "markets.refresh_interval",
			Message: "must be at least 10 seconds",
		})
	}

	if mc.TradeFetchLimit < 1 || mc.TradeFetchLimit > 1000 {
		errors = append(errors, ValidationError{
			Field:   "markets.trade_fetch_limit",
			Message: "must be between 1 and 1000",
		})
	}

	if mc.FetchConcurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "markets.fetch_concurrency",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateDetector(dc *DetectorConfig) []ValidationError {
	var errors []ValidationError

	if dc.Window < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "detector.window",
			Message: "must be at least 1 second",
		})
	}

	if dc.ClusterMinUSD < 0 {
		errors = append(errors, ValidationError{
			Field:   "detector.cluster_min_usd",
			Message: "must be non-negative",
		})
	}

	if dc.SurgeMinUSD < 0 {
		errors = append(errors, ValidationError{
			Field:   "detector.surge_min_usd",
			Message: "must be non-negative",
		})
	}

	if dc.Cooldown < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "detector.cooldown",
			Message: "must be at least 1 second",
		})
	}

	if dc.MinBuySellRatio < 1 {
		errors = append(errors, ValidationError{
			Field:   "detector.min_buy_sell_ratio",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateWallets(wc *WalletsConfig) []ValidationError {
	var errors []ValidationError

	if wc.PollInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "wallets.poll_interval",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validateStore(sc *StoreConfig, gc *GistConfig) []ValidationError {
	var errors []ValidationError

	switch sc.Backend {
	case "file":
		if strings.TrimSpace(sc.FilePath) == "" {
			errors = append(errors, ValidationError{
				Field:   "store.file_path",
				Message: "is required for the file backend",
			})
		}
	case "sqlite":
		if strings.TrimSpace(sc.SQLitePath) == "" {
			errors = append(errors, ValidationError{
				Field:   "store.sqlite_path",
				Message: "is required for the sqlite backend",
			})
		}
	case "gist":
		if strings.TrimSpace(gc.Token) == "" || strings.TrimSpace(gc.GistID) == "" {
			errors = append(errors, ValidationError{
				Field:   "store.backend",
				Message: "gist backend requires GITHUB_TOKEN and STATE_GIST_ID",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("must be one of file, sqlite, gist, got %q", sc.Backend),
		})
	}

	return errors
}

func validateState(sc *StateConfig) []ValidationError {
	var errors []ValidationError

	if sc.SaveInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "state.save_interval",
			Message: "must be at least 1 second",
		})
	}

	if strings.TrimSpace(sc.FileName) == "" {
		errors = append(errors, ValidationError{
			Field:   "state.file_name",
			Message: "is required",
		})
	}

	if sc.MaxSeenTrades < 100 {
		errors = append(errors, ValidationError{
			Field:   "state.max_seen_trades",
			Message: "must be at least 100",
		})
	}

	return errors
}

func validatePolymarket(pc *PolymarketConfig) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(pc.GammaAPIURL) == "" {
		errors = append(errors, ValidationError{
			Field:   "polymarket.gamma_api_url",
			Message: "is required",
		})
	}

	if strings.TrimSpace(pc.DataAPIURL) == "" {
		errors = append(errors, ValidationError{
			Field:   "polymarket.data_api_url",
			Message: "is required",
		})
	}

	return errors
}

func validateHealthServer(hs *HealthServerConfig) []ValidationError {
	var errors []ValidationError

	if !hs.Enabled {
		return errors
	}

	if hs.Port < 1 || hs.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "health_server.port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", hs.Port),
		})
	}

	return errors
}
