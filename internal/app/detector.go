package app

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SignalKind classifies a detected signal.
type SignalKind string

const (
	// SignalWolfPack marks coordinated buying: several distinct wallets
	// piling into one market inside the window.
	SignalWolfPack SignalKind = "WOLF_PACK"
	// SignalVolumeSurge marks raw buy volume on one market exceeding the
	// surge threshold, regardless of buyer diversity.
	SignalVolumeSurge SignalKind = "VOLUME_SURGE"
)

// minPackBuyers is the distinct-buyer floor for a wolf pack.
const minPackBuyers = 3

// Signal is one classified alert for one market. Emitted by Evaluate,
// formatted and dispatched, and surfaced on the stats feed.
type Signal struct {
	Kind         SignalKind `json:"kind"`
	MarketID     string     `json:"market_id"`
	MarketName   string     `json:"market_name"`
	MarketSlug   string     `json:"market_slug,omitempty"`
	MarketIcon   string     `json:"market_icon,omitempty"`
	Outcome      string     `json:"outcome,omitempty"`
	BuyVolume    float64    `json:"buy_volume"`
	SellVolume   float64    `json:"sell_volume"`
	Ratio        float64    `json:"ratio"`
	UniqueBuyers int        `json:"unique_buyers"`
	Timestamp    time.Time  `json:"timestamp"`
}

// DetectorConfig holds the window and classification thresholds.
type DetectorConfig struct {
	Window          time.Duration // retention horizon for trades
	ClusterMinUSD   float64       // buy volume a wolf pack must exceed (strict >)
	SurgeMinUSD     float64       // buy volume a surge must exceed (strict >)
	Cooldown        time.Duration // per-market suppression after a signal fires
	MinBuySellRatio float64       // minimum buy/sell dominance when sells are present
}

// DefaultDetectorConfig returns the stock thresholds. Low-volume
// deployments run a lowered 100/150 profile via env overrides.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Window:          60 * time.Second,
		ClusterMinUSD:   10000,
		SurgeMinUSD:     15000,
		Cooldown:        5 * time.Minute,
		MinBuySellRatio: 3.0,
	}
}

// Detector owns the sliding window and the per-market alert cooldowns.
// Ingest and Evaluate must be driven by a single goroutine; only the
// cooldown map is additionally lockable so the state persister can
// snapshot it from its own loop.
type Detector struct {
	logger *zap.Logger
	config DetectorConfig

	window *Window

	// cooldowns maps market ID to the epoch ms of its last alert. A
	// market is absent until its first alert. Guarded for snapshot
	// export; mutation stays on the owning goroutine.
	cooldownMu sync.Mutex
	cooldowns  map[string]int64
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(logger *zap.Logger, cfg DetectorConfig) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.MinBuySellRatio <= 0 {
		cfg.MinBuySellRatio = 3.0
	}

	return &Detector{
		logger:    logger,
		config:    cfg,
		window:    NewWindow(cfg.Window),
		cooldowns: make(map[string]int64),
	}
}

// Ingest adds one canonical trade to the window.
func (d *Detector) Ingest(t Trade) {
	d.window.Add(t)
}

// WindowSize returns the number of trades currently retained.
func (d *Detector) WindowSize() int {
	return d.window.Size()
}

// Reset drops all windowed trades and cooldowns.
func (d *Detector) Reset() {
	d.window.Reset()
	d.cooldownMu.Lock()
	d.cooldowns = make(map[string]int64)
	d.cooldownMu.Unlock()
}

// partition is one market's slice of the window.
type partition struct {
	buys           []Trade
	sells          []Trade
	representative Trade // most recent trade, for display metadata
}

// Evaluate partitions the windowed trades by market and returns zero or
// more classified signals, stamping the cooldown for each market that
// fires. Repeated calls with no new trades and no expired cooldowns
// return nothing after the first classification of a market.
func (d *Detector) Evaluate() []Signal {
	nowMs := time.Now().UnixMilli()

	partitions := make(map[string]*partition)
	for _, t := range d.window.Trades() {
		p, ok := partitions[t.MarketID]
		if !ok {
			p = &partition{representative: t}
			partitions[t.MarketID] = p
		}
		if t.Timestamp >= p.representative.Timestamp {
			p.representative = t
		}
		if t.Side == SideSell {
			p.sells = append(p.sells, t)
		} else {
			p.buys = append(p.buys, t)
		}
	}

	var signals []Signal
	for marketID, p := range partitions {
		if d.onCooldown(marketID, nowMs) {
			continue
		}

		var buyVol, sellVol float64
		for _, t := range p.buys {
			buyVol += t.AmountUSD
		}
		for _, t := range p.sells {
			sellVol += t.AmountUSD
		}

		// Buy pressure must dominate sells by the configured ratio.
		ratio := buyVol
		if sellVol > 0 {
			ratio = buyVol / sellVol
			if ratio < d.config.MinBuySellRatio {
				continue
			}
		}

		buyers := make(map[string]struct{}, len(p.buys))
		for _, t := range p.buys {
			if t.Wallet != "" {
				buyers[t.Wallet] = struct{}{}
			}
		}
		uniqueBuyers := len(buyers)

		var kind SignalKind
		switch {
		case uniqueBuyers >= minPackBuyers && buyVol > d.config.ClusterMinUSD:
			kind = SignalWolfPack
		case buyVol > d.config.SurgeMinUSD:
			kind = SignalVolumeSurge
		default:
			continue
		}

		d.stampCooldown(marketID, nowMs)

		sig := Signal{
			Kind:         kind,
			MarketID:     marketID,
			MarketName:   p.representative.MarketName,
			MarketSlug:   p.representative.MarketSlug,
			MarketIcon:   p.representative.MarketIcon,
			Outcome:      p.representative.Outcome,
			BuyVolume:    buyVol,
			SellVolume:   sellVol,
			Ratio:        ratio,
			UniqueBuyers: uniqueBuyers,
			Timestamp:    time.UnixMilli(nowMs),
		}
		signals = append(signals, sig)

		d.logger.Info("signal detected",
			zap.String("kind", string(kind)),
			zap.String("market", shortID(marketID)),
			zap.Float64("buyVolume", buyVol),
			zap.Float64("sellVolume", sellVol),
			zap.Int("uniqueBuyers", uniqueBuyers),
		)
	}

	return signals
}

// onCooldown reports whether marketID alerted less than the cooldown ago.
func (d *Detector) onCooldown(marketID string, nowMs int64) bool {
	d.cooldownMu.Lock()
	last, ok := d.cooldowns[marketID]
	d.cooldownMu.Unlock()
	if !ok {
		return false
	}
	return nowMs-last < d.config.Cooldown.Milliseconds()
}

func (d *Detector) stampCooldown(marketID string, nowMs int64) {
	d.cooldownMu.Lock()
	d.cooldowns[marketID] = nowMs
	d.cooldownMu.Unlock()
}

// CooldownCount returns the number of markets with a recorded alert.
func (d *Detector) CooldownCount() int {
	d.cooldownMu.Lock()
	defer d.cooldownMu.Unlock()
	return len(d.cooldowns)
}

// CooldownSnapshot is a serializable snapshot of the per-market alert
// cooldowns.
type CooldownSnapshot struct {
	Version   int              `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
	Cooldowns map[string]int64 `json:"cooldowns"`
}

// ExportCooldowns copies the cooldown map for persistence. Entries that
// have already expired are left out.
func (d *Detector) ExportCooldowns() *CooldownSnapshot {
	nowMs := time.Now().UnixMilli()
	cooldownMs := d.config.Cooldown.Milliseconds()

	d.cooldownMu.Lock()
	defer d.cooldownMu.Unlock()

	cooldowns := make(map[string]int64, len(d.cooldowns))
	for market, last := range d.cooldowns {
		if nowMs-last < cooldownMs {
			cooldowns[market] = last
		}
	}

	return &CooldownSnapshot{
		Version:   1,
		Timestamp: time.Now(),
		Cooldowns: cooldowns,
	}
}

// ImportCooldowns merges a snapshot into the cooldown map. Newer stamps
// win; already-expired entries are dropped. Returns the number imported.
func (d *Detector) ImportCooldowns(snapshot *CooldownSnapshot) int {
	if snapshot == nil || len(snapshot.Cooldowns) == 0 {
		return 0
	}

	nowMs := time.Now().UnixMilli()
	cooldownMs := d.config.Cooldown.Milliseconds()

	d.cooldownMu.Lock()
	defer d.cooldownMu.Unlock()

	imported := 0
	for market, last := range snapshot.Cooldowns {
		if nowMs-last >= cooldownMs {
			continue
		}
		if existing, ok := d.cooldowns[market]; ok && existing >= last {
			continue
		}
		d.cooldowns[market] = last
		imported++
	}

	return imported
}
