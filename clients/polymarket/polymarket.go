package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Kalifa21/the-watcher/config"

	"go.uber.org/zap"
)

// Client talks to the Polymarket Gamma and Data APIs.
type Client struct {
	logger       *zap.Logger
	httpClient   *http.Client
	gammaBaseURL string
	dataBaseURL  string
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		gammaBaseURL: cfg.Polymarket.GammaAPIURL,
		dataBaseURL:  cfg.Polymarket.DataAPIURL,
	}
}

// ---- Gamma API types (minimal; add fields as you need) ----

type GammaMarket struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	Question     string          `json:"question"`
	ConditionID  string          `json:"conditionId"`
	ClobTokenIDs json.RawMessage `json:"clobTokenIds"`

	// Outcome labels, e.g. ["Yes", "No"]
	Outcomes json.RawMessage `json:"outcomes"`

	// Volume metrics
	Volume24hr float64 `json:"volume24hr"`
	VolumeNum  float64 `json:"volumeNum"`

	// Status
	Active bool `json:"active"`
	Closed bool `json:"closed"`

	// Market image
	Image string `json:"image"`
}

// GetOutcomes parses the Outcomes field and returns the outcome names.
func (m *GammaMarket) GetOutcomes() []string {
	if len(m.Outcomes) == 0 {
		return nil
	}

	// Try parsing as direct array
	var outcomes []string
	if err := json.Unmarshal(m.Outcomes, &outcomes); err == nil {
		return outcomes
	}

	// Try parsing as JSON string containing an array (e.g., "[\"Yes\", \"No\"]")
	var jsonStr string
	if err := json.Unmarshal(m.Outcomes, &jsonStr); err == nil {
		if err := json.Unmarshal([]byte(jsonStr), &outcomes); err == nil {
			return outcomes
		}
	}

	return nil
}

// GetTokenIDs parses the ClobTokenIDs field and returns the token IDs.
// Returns nil if parsing fails or no token IDs are present.
// Handles multiple Gamma API formats:
// - Direct array: ["token1", "token2"]
// - Array containing JSON string: ["[\"token1\", \"token2\"]"]
// - JSON string: "[\"token1\", \"token2\"]"
func (m *GammaMarket) GetTokenIDs() []string {
	if len(m.ClobTokenIDs) == 0 {
		return nil
	}

	// Try parsing as array of strings directly
	var tokenIDs []string
	if err := json.Unmarshal(m.ClobTokenIDs, &tokenIDs); err == nil && len(tokenIDs) > 0 {
		// Check if elements are themselves JSON arrays (nested encoding)
		// e.g., ["[\"token1\", \"token2\"]"] -> ["token1", "token2"]
		if len(tokenIDs) == 1 && len(tokenIDs[0]) > 0 && tokenIDs[0][0] == '[' {
			var nested []string
			if err := json.Unmarshal([]byte(tokenIDs[0]), &nested); err == nil && len(nested) > 0 {
				return nested
			}
		}
		// Check if ALL elements look like JSON arrays and flatten them
		var flattened []string
		allNested := true
		for _, t := range tokenIDs {
			if len(t) > 0 && t[0] == '[' {
				var nested []string
				if err := json.Unmarshal([]byte(t), &nested); err == nil {
					flattened = append(flattened, nested...)
					continue
				}
			}
			allNested = false
			break
		}
		if allNested && len(flattened) > 0 {
			return flattened
		}
		return tokenIDs
	}

	// Try parsing as a JSON string containing an array
	var jsonStr string
	if err := json.Unmarshal(m.ClobTokenIDs, &jsonStr); err == nil && jsonStr != "" {
		var innerTokenIDs []string
		if err := json.Unmarshal([]byte(jsonStr), &innerTokenIDs); err == nil && len(innerTokenIDs) > 0 {
			return innerTokenIDs
		}
	}

	return nil
}

// GetTopMarketsByVolume fetches the top active markets sorted by 24-hour
// trading volume.
func (c *Client) GetTopMarketsByVolume(
	ctx context.Context,
	limit int,
) ([]GammaMarket, error) {
	if limit <= 0 {
		limit = 20
	}

	u, err := url.Parse(c.gammaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gammaBaseURL: %w", err)
	}
	u.Path = "/markets"

	q := u.Query()
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	q.Set("active", "true")
	u.RawQuery = q.Encode()

	var markets []GammaMarket
	if err := c.doGet(ctx, u.String(), &markets); err != nil {
		return nil, fmt.Errorf("get top markets: %w", err)
	}

	return markets, nil
}

// ---- Data API types ----

// Trade represents a trade from the data API. The numeric fields arrive
// in inconsistent formats (numbers or quoted strings), so they are kept
// raw and read through the Get* accessors, which treat anything
// unparseable as zero.
type Trade struct {
	ID              string          `json:"id"`
	ProxyWallet     string          `json:"proxyWallet"`
	Side            string          `json:"side"` // BUY or SELL
	Size            json.RawMessage `json:"size"`
	Price           json.RawMessage `json:"price"`
	Timestamp       json.RawMessage `json:"timestamp"` // epoch seconds
	ConditionID     string          `json:"conditionId"`
	Asset           string          `json:"asset"`
	TransactionHash string          `json:"transactionHash"`

	// Market metadata
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Icon         string `json:"icon"`
	Outcome      string `json:"outcome"`
	OutcomeIndex int    `json:"outcomeIndex"`

	// User profile
	Name         string `json:"name"`
	Pseudonym    string `json:"pseudonym"`
	ProfileImage string `json:"profileImage"`
}

// GetSize returns the trade size in shares, or 0 if malformed.
func (t *Trade) GetSize() float64 {
	return parseFloat(t.Size)
}

// GetPrice returns the price per share, or 0 if malformed.
func (t *Trade) GetPrice() float64 {
	return parseFloat(t.Price)
}

// GetTimestamp returns the trade time in epoch seconds, or 0 if malformed.
func (t *Trade) GetTimestamp() int64 {
	return parseInt64(t.Timestamp)
}

// Activity represents user activity from the data API.
type Activity struct {
	ProxyWallet     string          `json:"proxyWallet"`
	Timestamp       json.RawMessage `json:"timestamp"` // epoch seconds
	ConditionID     string          `json:"conditionId"`
	Type            string          `json:"type"` // TRADE, SPLIT, MERGE, REDEEM, REWARD, CONVERSION
	Size            json.RawMessage `json:"size"`
	UsdcSize        json.RawMessage `json:"usdcSize"`
	Price           json.RawMessage `json:"price"`
	Side            string          `json:"side"`
	TransactionHash string          `json:"transactionHash"`

	// Market metadata
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Outcome string `json:"outcome"`
}

// GetTimestamp returns the activity time in epoch seconds, or 0 if malformed.
func (a *Activity) GetTimestamp() int64 {
	return parseInt64(a.Timestamp)
}

// GetSize returns the activity size in shares, or 0 if malformed.
func (a *Activity) GetSize() float64 {
	return parseFloat(a.Size)
}

// GetUsdcSize returns the USDC value of the activity, or 0 if malformed.
func (a *Activity) GetUsdcSize() float64 {
	return parseFloat(a.UsdcSize)
}

// GetPrice returns the price per share, or 0 if malformed.
func (a *Activity) GetPrice() float64 {
	return parseFloat(a.Price)
}

// GetTrades fetches recent trades for the given market condition IDs.
func (c *Client) GetTrades(
	ctx context.Context,
	markets []string,
	limit int,
) ([]Trade, error) {
	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/trades"

	q := u.Query()
	if len(markets) > 0 {
		q.Set("market", strings.Join(markets, ","))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	u.RawQuery = q.Encode()

	var trades []Trade
	if err := c.doGet(ctx, u.String(), &trades); err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}

	return trades, nil
}

// GetUserActivity fetches activity for a specific wallet address, most
// recent first.
func (c *Client) GetUserActivity(
	ctx context.Context,
	wallet string,
	limit int,
) ([]Activity, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("wallet is empty")
	}

	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/activity"

	q := u.Query()
	q.Set("user", wallet)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	u.RawQuery = q.Encode()

	var activity []Activity
	if err := c.doGet(ctx, u.String(), &activity); err != nil {
		return nil, fmt.Errorf("get user activity: %w", err)
	}

	return activity, nil
}

// GetLatestActivity fetches the single most recent activity entry for a
// wallet. Returns nil if the wallet has no activity.
func (c *Client) GetLatestActivity(
	ctx context.Context,
	wallet string,
) (*Activity, error) {
	activity, err := c.GetUserActivity(ctx, wallet, 1)
	if err != nil {
		return nil, err
	}
	if len(activity) == 0 {
		return nil, nil
	}
	return &activity[0], nil
}

// doGet is a helper that performs a GET request and decodes JSON response.
func (c *Client) doGet(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	return nil
}

// parseFloat decodes a JSON value that may be a number or a numeric
// string. Anything else parses as zero.
func parseFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}

	return 0
}

// parseInt64 decodes a JSON value that may be an integer, a float, or a
// numeric string. Anything else parses as zero.
func parseInt64(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int64(f)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return v
		}
	}

	return 0
}
