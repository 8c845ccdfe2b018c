package app

import (
	"fmt"
	"strings"

	"github.com/Kalifa21/the-watcher/clients/marketevents"
	"github.com/Kalifa21/the-watcher/clients/polymarket"
)

// Side is the normalized direction of a trade.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Trade is the canonical trade value the detector operates on. Immutable
// once built. Timestamp is epoch milliseconds of when the trade happened
// upstream, never ingestion time.
type Trade struct {
	Timestamp  int64 // epoch ms
	MarketID   string
	MarketName string
	MarketSlug string
	MarketIcon string
	Outcome    string
	Side       Side
	AmountUSD  float64
	Wallet     string
}

// normalizeSide maps upstream side labels (any case) to the canonical
// Side. Anything that is not a sell counts as a buy.
func normalizeSide(s string) Side {
	if strings.EqualFold(strings.TrimSpace(s), "SELL") {
		return SideSell
	}
	return SideBuy
}

// toEpochMillis converts an upstream timestamp to epoch milliseconds.
// The data API reports epoch seconds while the live feed reports epoch
// milliseconds; values already in the millisecond range pass through.
func toEpochMillis(ts int64) int64 {
	if ts <= 0 {
		return 0
	}
	if ts < 1_000_000_000_000 {
		return ts * 1000
	}
	return ts
}

// TradeFromRecord normalizes a REST trade record into a canonical Trade.
// USD notional is size times price; malformed numeric fields decode to
// zero upstream, keeping the sums well-defined.
func TradeFromRecord(rec *polymarket.Trade) Trade {
	return Trade{
		Timestamp:  toEpochMillis(rec.GetTimestamp()),
		MarketID:   rec.ConditionID,
		MarketName: rec.Title,
		MarketSlug: rec.Slug,
		MarketIcon: rec.Icon,
		Outcome:    rec.Outcome,
		Side:       normalizeSide(rec.Side),
		AmountUSD:  rec.GetSize() * rec.GetPrice(),
		Wallet:     rec.ProxyWallet,
	}
}

// TradeFromEvent normalizes a live-feed trade event into a canonical
// Trade. The feed only carries asset IDs, so market display metadata is
// filled from the monitor's token index when available.
func TradeFromEvent(ev *marketevents.TradeEvent, info *MarketInfo) Trade {
	t := Trade{
		Timestamp: toEpochMillis(ev.GetTimestampUnix()),
		Side:      normalizeSide(ev.Side),
		AmountUSD: ev.GetSizeFloat() * ev.GetPriceFloat(),
		Wallet:    ev.Wallet(),
	}
	if info != nil {
		t.MarketID = info.ConditionID
		t.MarketName = info.Title
		t.MarketSlug = info.Slug
		t.MarketIcon = info.Image
		t.Outcome = info.OutcomeForToken(ev.AssetID)
	}
	return t
}

// seenKey identifies a trade across upstream redeliveries. One
// transaction can touch several markets, so the market is part of the
// key.
func seenKey(txHash, market string) string {
	return fmt.Sprintf("%s:%s", txHash, market)
}
