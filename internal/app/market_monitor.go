package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Kalifa21/the-watcher/clients/marketevents"
	"github.com/Kalifa21/the-watcher/clients/polymarket"
	"go.uber.org/zap"
)

// MarketFeed is the slice of the market-data client the monitor needs.
type MarketFeed interface {
	GetTopMarketsByVolume(ctx context.Context, limit int) ([]polymarket.GammaMarket, error)
	GetTrades(ctx context.Context, markets []string, limit int) ([]polymarket.Trade, error)
}

// LiveFeed is the optional websocket trade stream.
type LiveFeed interface {
	ConnectMarket(ctx context.Context, assetIDs []string) error
	SubscribeAssets(assetIDs []string) error
	UnsubscribeAssets(assetIDs []string) error
	Messages() <-chan json.RawMessage
	Errors() <-chan error
	Stats() marketevents.WSStats
	Close() error
}

// SignalSink receives classified signals for delivery. Satisfied by the
// dispatcher.
type SignalSink interface {
	BroadcastSignal(ctx context.Context, sig Signal)
}

// MarketMonitorConfig holds the monitor's cadence and ingest settings.
type MarketMonitorConfig struct {
	PollInterval     time.Duration // trade poll / evaluation cadence
	HotMarketsCount  int           // how many top-volume markets to track
	RefreshInterval  time.Duration // how often the market set is rebuilt
	TradeFetchLimit  int           // per-market trade fetch size
	FetchConcurrency int           // bounded fan-out for per-market fetches
	ForwardSells     bool          // feed sell-side trades into the window
	MaxSeenTrades    int           // dedup set cap
}

// DefaultMarketMonitorConfig returns sensible defaults.
func DefaultMarketMonitorConfig() MarketMonitorConfig {
	return MarketMonitorConfig{
		PollInterval:     15 * time.Second,
		HotMarketsCount:  20,
		RefreshInterval:  10 * time.Minute,
		TradeFetchLimit:  100,
		FetchConcurrency: 5,
		MaxSeenTrades:    5000,
	}
}

// MarketInfo holds metadata about a monitored market.
type MarketInfo struct {
	ConditionID string
	Title       string
	Slug        string
	Image       string
	Outcomes    []string // e.g., ["Yes", "No"]
	TokenIDs    []string // parallel to Outcomes
}

// OutcomeForToken maps an asset ID to its outcome label.
func (mi *MarketInfo) OutcomeForToken(tokenID string) string {
	for i, id := range mi.TokenIDs {
		if id == tokenID && i < len(mi.Outcomes) {
			return mi.Outcomes[i]
		}
	}
	return ""
}

// MonitorStats holds monitor counters for the stats endpoint.
type MonitorStats struct {
	MarketsTracked  int       `json:"markets_tracked"`
	TokensTracked   int       `json:"tokens_tracked"`
	WindowSize      int       `json:"window_size"`
	TradesIngested  int       `json:"trades_ingested"`
	TradesDeduped   int       `json:"trades_deduped"`
	SellsDropped    int       `json:"sells_dropped"`
	Evaluations     int       `json:"evaluations"`
	WolfPackSignals int       `json:"wolf_pack_signals"`
	SurgeSignals    int       `json:"volume_surge_signals"`
	SeenTrades      int       `json:"seen_trades"`
	CooldownsActive int       `json:"cooldowns_active"`
	LastSignalAt    time.Time `json:"last_signal_at,omitempty"`
	WSConnected     bool      `json:"ws_connected"`
}

// maxRecentSignals is how many signals the dashboard feed keeps.
const maxRecentSignals = 10

// MarketMonitor drives the global-market side: it keeps the hot-market
// set fresh, pulls recent trades into the detector's window, runs
// evaluation on a fixed cadence, and hands signals to the sink.
type MarketMonitor struct {
	logger   *zap.Logger
	feed     MarketFeed
	live     LiveFeed // nil in poll mode
	detector *Detector
	sink     SignalSink
	config   MarketMonitorConfig

	// Monitored market set, rebuilt by RefreshMarkets.
	mu          sync.RWMutex
	markets     []string // condition IDs
	infoByID    map[string]*MarketInfo
	infoByToken map[string]*MarketInfo
	allTokenIDs []string

	// Ingest dedup, persisted across restarts.
	seenMu     sync.Mutex
	seenTrades map[string]struct{}

	// Counters for the stats endpoint.
	statsMu         sync.Mutex
	windowSize      int
	tradesIngested  int
	tradesDeduped   int
	sellsDropped    int
	evaluations     int
	wolfPackSignals int
	surgeSignals    int
	lastSignalAt    time.Time
	recentSignals   []Signal

	wsConnectedMu sync.RWMutex
	wsConnected   bool
}

// NewMarketMonitor creates a monitor in poll mode. Call AttachLiveFeed
// before Run to consume the websocket stream instead.
func NewMarketMonitor(
	logger *zap.Logger,
	feed MarketFeed,
	detector *Detector,
	sink SignalSink,
	cfg MarketMonitorConfig,
) *MarketMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 10 * time.Minute
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 5
	}
	if cfg.MaxSeenTrades <= 0 {
		cfg.MaxSeenTrades = 5000
	}

	return &MarketMonitor{
		logger:      logger,
		feed:        feed,
		detector:    detector,
		sink:        sink,
		config:      cfg,
		infoByID:    make(map[string]*MarketInfo),
		infoByToken: make(map[string]*MarketInfo),
		seenTrades:  make(map[string]struct{}),
	}
}

// AttachLiveFeed switches the monitor to live-feed mode. Must be called
// before Run.
func (m *MarketMonitor) AttachLiveFeed(live LiveFeed) {
	m.live = live
}

// UpdateMarkets replaces the monitored market set and, when a live feed
// is connected, adjusts its subscriptions to match.
func (m *MarketMonitor) UpdateMarkets(markets []polymarket.GammaMarket) error {
	infoByID := make(map[string]*MarketInfo, len(markets))
	infoByToken := make(map[string]*MarketInfo)
	ids := make([]string, 0, len(markets))
	var tokens []string

	for i := range markets {
		gm := &markets[i]
		if gm.ConditionID == "" {
			continue
		}
		info := &MarketInfo{
			ConditionID: gm.ConditionID,
			Title:       gm.Question,
			Slug:        gm.Slug,
			Image:       gm.Image,
			Outcomes:    gm.GetOutcomes(),
			TokenIDs:    gm.GetTokenIDs(),
		}
		ids = append(ids, gm.ConditionID)
		infoByID[gm.ConditionID] = info
		for _, tok := range info.TokenIDs {
			infoByToken[tok] = info
			tokens = append(tokens, tok)
		}
	}

	if len(ids) == 0 {
		return fmt.Errorf("no usable markets in update")
	}

	m.mu.Lock()
	previous := m.allTokenIDs
	m.markets = ids
	m.infoByID = infoByID
	m.infoByToken = infoByToken
	m.allTokenIDs = tokens
	m.mu.Unlock()

	m.logger.Info("monitored markets updated",
		zap.Int("markets", len(ids)),
		zap.Int("tokens", len(tokens)),
	)

	if m.live != nil && m.WSConnected() {
		if added := difference(tokens, previous); len(added) > 0 {
			if err := m.live.SubscribeAssets(added); err != nil {
				m.logger.Warn("failed to subscribe new assets",
					zap.Int("count", len(added)),
					zap.Error(err),
				)
			}
		}
		if removed := difference(previous, tokens); len(removed) > 0 {
			if err := m.live.UnsubscribeAssets(removed); err != nil {
				m.logger.Warn("failed to unsubscribe stale assets",
					zap.Int("count", len(removed)),
					zap.Error(err),
				)
			}
		}
	}

	return nil
}

// RefreshMarkets re-fetches the hot-market set by 24h volume.
func (m *MarketMonitor) RefreshMarkets(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	markets, err := m.feed.GetTopMarketsByVolume(fetchCtx, m.config.HotMarketsCount)
	if err != nil {
		return fmt.Errorf("fetch top markets: %w", err)
	}
	if len(markets) == 0 {
		return fmt.Errorf("no active markets returned")
	}
	return m.UpdateMarkets(markets)
}

// Markets returns the currently monitored condition IDs.
func (m *MarketMonitor) Markets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.markets))
	copy(out, m.markets)
	return out
}

// TokenIDs returns every subscribed asset ID.
func (m *MarketMonitor) TokenIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.allTokenIDs))
	copy(out, m.allTokenIDs)
	return out
}

// MarketNames returns the display names of the monitored markets.
func (m *MarketMonitor) MarketNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.markets))
	for _, id := range m.markets {
		if info, ok := m.infoByID[id]; ok && info.Title != "" {
			names = append(names, info.Title)
		}
	}
	return names
}

func (m *MarketMonitor) infoForToken(tokenID string) *MarketInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.infoByToken[tokenID]
}

// SetWSConnected records the live feed's connection state.
func (m *MarketMonitor) SetWSConnected(connected bool) {
	m.wsConnectedMu.Lock()
	m.wsConnected = connected
	m.wsConnectedMu.Unlock()
}

// WSConnected reports the live feed's connection state.
func (m *MarketMonitor) WSConnected() bool {
	m.wsConnectedMu.RLock()
	defer m.wsConnectedMu.RUnlock()
	return m.wsConnected
}

// alreadySeen records key and reports whether it was present. The set
// is capped; on overflow arbitrary entries are evicted back down to the
// cap, which only risks re-ingesting trades old enough to have left the
// window anyway.
func (m *MarketMonitor) alreadySeen(key string) bool {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()

	if _, ok := m.seenTrades[key]; ok {
		return true
	}
	m.seenTrades[key] = struct{}{}

	if limit := m.config.MaxSeenTrades; len(m.seenTrades) > limit*2 {
		evicted := 0
		for k := range m.seenTrades {
			delete(m.seenTrades, k)
			evicted++
			if len(m.seenTrades) <= limit {
				break
			}
		}
		m.logger.Debug("evicted seen trades", zap.Int("evicted", evicted))
	}

	return false
}

// ingestRecord applies the ingest filters to a REST trade record and
// adds it to the detector's window. Returns true when the trade entered
// the window.
func (m *MarketMonitor) ingestRecord(rec *polymarket.Trade) bool {
	if !m.config.ForwardSells && normalizeSide(rec.Side) == SideSell {
		m.countSellDropped()
		return false
	}

	if m.alreadySeen(seenKey(nz(rec.TransactionHash, rec.ID), rec.ConditionID)) {
		m.countDeduped()
		return false
	}

	m.detector.Ingest(TradeFromRecord(rec))
	m.countIngested()
	return true
}

// HandleLiveEvent ingests one raw live-feed frame. Non-trade frames are
// dropped. Called only from the Run goroutine, preserving the
// detector's single ownership.
func (m *MarketMonitor) HandleLiveEvent(raw json.RawMessage) {
	ev := marketevents.ParseTradeEvent(raw)
	if ev == nil {
		return
	}

	// Frames for tokens we no longer track arrive briefly after an
	// unsubscribe; they carry no market metadata, so drop them.
	info := m.infoForToken(ev.AssetID)
	if info == nil {
		return
	}

	if !m.config.ForwardSells && normalizeSide(ev.Side) == SideSell {
		m.countSellDropped()
		return
	}

	if id := nz(ev.TransactionHash, ev.TradeID); id != "" {
		if m.alreadySeen(seenKey(id, ev.AssetID)) {
			m.countDeduped()
			return
		}
	}

	m.detector.Ingest(TradeFromEvent(ev, info))
	m.countIngested()
}

// pollOnce fetches recent trades for every monitored market with
// bounded fan-out, joins the results, then ingests and evaluates on the
// calling goroutine.
func (m *MarketMonitor) pollOnce(ctx context.Context) {
	markets := m.Markets()
	if len(markets) == 0 {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	sem := make(chan struct{}, m.config.FetchConcurrency)
	var wg sync.WaitGroup

	var resMu sync.Mutex
	var fetched []polymarket.Trade

	for _, market := range markets {
		wg.Add(1)
		sem <- struct{}{}
		go func(market string) {
			defer wg.Done()
			defer func() { <-sem }()

			trades, err := m.feed.GetTrades(fetchCtx, []string{market}, m.config.TradeFetchLimit)
			if err != nil {
				m.logger.Warn("failed to fetch trades",
					zap.String("market", shortID(market)),
					zap.Error(err),
				)
				return
			}

			resMu.Lock()
			fetched = append(fetched, trades...)
			resMu.Unlock()
		}(market)
	}
	wg.Wait()

	for i := range fetched {
		m.ingestRecord(&fetched[i])
	}

	m.evaluateAndDispatch(ctx)
}

// evaluateAndDispatch runs one detector evaluation and broadcasts every
// resulting signal.
func (m *MarketMonitor) evaluateAndDispatch(ctx context.Context) {
	signals := m.detector.Evaluate()
	m.noteEvaluation()

	for _, sig := range signals {
		m.recordSignal(sig)
		m.sink.BroadcastSignal(ctx, sig)
	}
}

// Run drives the global-market side until ctx is cancelled. In poll
// mode each tick fetches trades and evaluates. In live-feed mode the
// same goroutine consumes the event stream and the evaluation ticker,
// keeping the detector single-owner.
func (m *MarketMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()
	refresh := time.NewTicker(m.config.RefreshInterval)
	defer refresh.Stop()

	m.logger.Info("market monitor started",
		zap.Duration("pollInterval", m.config.PollInterval),
		zap.Duration("refreshInterval", m.config.RefreshInterval),
		zap.Bool("liveFeed", m.live != nil),
	)

	if m.live != nil {
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("market monitor stopped")
				return
			case raw := <-m.live.Messages():
				m.HandleLiveEvent(raw)
			case err := <-m.live.Errors():
				m.logger.Warn("live feed error", zap.Error(err))
			case <-ticker.C:
				m.evaluateAndDispatch(ctx)
			case <-refresh.C:
				if err := m.RefreshMarkets(ctx); err != nil {
					m.logger.Warn("market refresh failed", zap.Error(err))
				}
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("market monitor stopped")
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		case <-refresh.C:
			if err := m.RefreshMarkets(ctx); err != nil {
				m.logger.Warn("market refresh failed", zap.Error(err))
			}
		}
	}
}

// SeenTradesSnapshot is a serializable snapshot of the ingest dedup
// keys.
type SeenTradesSnapshot struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Trades    []string  `json:"trades"`
}

// ExportSeenTrades exports the dedup keys for persistence.
func (m *MarketMonitor) ExportSeenTrades() *SeenTradesSnapshot {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()

	trades := make([]string, 0, len(m.seenTrades))
	for k := range m.seenTrades {
		trades = append(trades, k)
	}

	return &SeenTradesSnapshot{
		Version:   1,
		Timestamp: time.Now(),
		Trades:    trades,
	}
}

// ImportSeenTrades merges a snapshot into the dedup set. Returns the
// number of keys imported.
func (m *MarketMonitor) ImportSeenTrades(snapshot *SeenTradesSnapshot) int {
	if snapshot == nil || len(snapshot.Trades) == 0 {
		return 0
	}

	m.seenMu.Lock()
	defer m.seenMu.Unlock()

	imported := 0
	for _, k := range snapshot.Trades {
		if _, ok := m.seenTrades[k]; !ok {
			m.seenTrades[k] = struct{}{}
			imported++
		}
	}
	return imported
}

// SeenTradesCount returns the dedup set size.
func (m *MarketMonitor) SeenTradesCount() int {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	return len(m.seenTrades)
}

// Stats returns a snapshot of the monitor counters.
func (m *MarketMonitor) Stats() MonitorStats {
	m.mu.RLock()
	marketCount := len(m.markets)
	tokenCount := len(m.allTokenIDs)
	m.mu.RUnlock()

	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	return MonitorStats{
		MarketsTracked:  marketCount,
		TokensTracked:   tokenCount,
		WindowSize:      m.windowSize,
		TradesIngested:  m.tradesIngested,
		TradesDeduped:   m.tradesDeduped,
		SellsDropped:    m.sellsDropped,
		Evaluations:     m.evaluations,
		WolfPackSignals: m.wolfPackSignals,
		SurgeSignals:    m.surgeSignals,
		SeenTrades:      m.SeenTradesCount(),
		CooldownsActive: m.detector.CooldownCount(),
		LastSignalAt:    m.lastSignalAt,
		WSConnected:     m.WSConnected(),
	}
}

// RecentSignals returns the dashboard feed, newest first.
func (m *MarketMonitor) RecentSignals() []Signal {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	out := make([]Signal, len(m.recentSignals))
	copy(out, m.recentSignals)
	return out
}

func (m *MarketMonitor) countIngested() {
	size := m.detector.WindowSize()
	m.statsMu.Lock()
	m.tradesIngested++
	m.windowSize = size
	m.statsMu.Unlock()
}

func (m *MarketMonitor) countDeduped() {
	m.statsMu.Lock()
	m.tradesDeduped++
	m.statsMu.Unlock()
}

func (m *MarketMonitor) countSellDropped() {
	m.statsMu.Lock()
	m.sellsDropped++
	m.statsMu.Unlock()
}

func (m *MarketMonitor) noteEvaluation() {
	size := m.detector.WindowSize()
	m.statsMu.Lock()
	m.evaluations++
	m.windowSize = size
	m.statsMu.Unlock()
}

func (m *MarketMonitor) recordSignal(sig Signal) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	switch sig.Kind {
	case SignalWolfPack:
		m.wolfPackSignals++
	case SignalVolumeSurge:
		m.surgeSignals++
	}
	m.lastSignalAt = time.Now()

	m.recentSignals = append([]Signal{sig}, m.recentSignals...)
	if len(m.recentSignals) > maxRecentSignals {
		m.recentSignals = m.recentSignals[:maxRecentSignals]
	}
}
