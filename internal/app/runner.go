package app

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	clts "github.com/Kalifa21/the-watcher/clients"
	"github.com/Kalifa21/the-watcher/config"
	"github.com/Kalifa21/the-watcher/internal/store"
)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// Runner wires the watcher's components together and supervises their
// goroutines until the context is cancelled.
type Runner struct {
	clients *clts.Clients
	config  *config.Config
	store   store.Store

	detector       *Detector
	dispatcher     *Dispatcher
	monitor        *MarketMonitor
	walletWatcher  *WalletWatcher
	commandHandler *CommandHandler
	statePersister *StatePersister
	healthServer   *http.Server
	startTime      time.Time
}

// ServiceStats holds the full service snapshot served by /stats.
type ServiceStats struct {
	// Build info
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	// Service info
	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	// Live feed health
	WebSocket struct {
		Enabled        bool   `json:"enabled"`
		Connected      bool   `json:"connected"`
		MessageCount   uint64 `json:"message_count"`
		LastMessageAt  string `json:"last_message_at,omitempty"`
		LastMessageAgo string `json:"last_message_ago,omitempty"`
	} `json:"websocket"`

	// Component counters
	Monitor       MonitorStats       `json:"monitor"`
	WalletWatcher WalletWatcherStats `json:"wallet_watcher"`
	Dispatcher    DispatcherStats    `json:"dispatcher"`
	Commands      CommandStats       `json:"commands"`

	// Recent signals feed, newest first
	RecentSignals []Signal `json:"recent_signals"`

	// Monitored market names
	MarketNames []string `json:"market_names"`

	// Signal rate (signals per hour since start)
	SignalRate    float64 `json:"signal_rate"`
	LastSignalAt  string  `json:"last_signal_at,omitempty"`
	LastSignalAgo string  `json:"last_signal_ago,omitempty"`

	// Delivery channel status
	Notifications struct {
		TelegramEnabled bool `json:"telegram_enabled"`
		DiscordEnabled  bool `json:"discord_enabled"`
	} `json:"notifications"`

	// Runtime stats
	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`
		HeapSys    uint64 `json:"heap_sys"`
		HeapInuse  uint64 `json:"heap_inuse"`
		StackInuse uint64 `json:"stack_inuse"`
		NumGC      uint32 `json:"num_gc"`
		LastGC     string `json:"last_gc,omitempty"`
		GoVersion  string `json:"go_version"`
		NumCPU     int    `json:"num_cpu"`
		GOOS       string `json:"goos"`
		GOARCH     string `json:"goarch"`
	} `json:"runtime"`
}

// NewRunner creates a runner over pre-built clients and store.
func NewRunner(clients *clts.Clients, cfg *config.Config, st store.Store) *Runner {
	return &Runner{
		clients: clients,
		config:  cfg,
		store:   st,
	}
}

// Run builds the component graph, restores persisted state, starts
// every loop, and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()
	logger := r.clients.Logger
	cfg := r.config

	logger.Info("starting watcher",
		zap.String("commit", BuildCommit),
		zap.Int("hotMarketsCount", cfg.Markets.HotMarketsCount),
		zap.Duration("marketPollInterval", cfg.Markets.PollInterval),
		zap.Duration("walletPollInterval", cfg.Wallets.PollInterval),
		zap.Bool("useWebSocket", cfg.Markets.UseWebSocket),
	)

	r.detector = NewDetector(logger, DetectorConfig{
		Window:          cfg.Detector.Window,
		ClusterMinUSD:   cfg.Detector.ClusterMinUSD,
		SurgeMinUSD:     cfg.Detector.SurgeMinUSD,
		Cooldown:        cfg.Detector.Cooldown,
		MinBuySellRatio: cfg.Detector.MinBuySellRatio,
	})

	r.dispatcher = NewDispatcher(logger, r.clients.Telegram, r.clients.Discord, r.store)

	r.monitor = NewMarketMonitor(
		logger,
		r.clients.Polymarket,
		r.detector,
		r.dispatcher,
		MarketMonitorConfig{
			PollInterval:     cfg.Markets.PollInterval,
			HotMarketsCount:  cfg.Markets.HotMarketsCount,
			RefreshInterval:  cfg.Markets.RefreshInterval,
			TradeFetchLimit:  cfg.Markets.TradeFetchLimit,
			FetchConcurrency: cfg.Markets.FetchConcurrency,
			ForwardSells:     cfg.Markets.ForwardSells,
			MaxSeenTrades:    cfg.State.MaxSeenTrades,
		},
	)

	r.walletWatcher = NewWalletWatcher(
		logger,
		r.clients.Polymarket,
		r.store,
		r.dispatcher,
		cfg.Wallets.PollInterval,
	)

	r.statePersister = NewStatePersister(
		logger,
		r.clients.Gist,
		r.monitor,
		r.detector,
		cfg.State.SaveInterval,
		cfg.State.FileName,
		cfg.State.MaxSeenTrades,
	)

	r.commandHandler = NewCommandHandler(logger, r.clients.Telegram, r.store, r.walletWatcher)

	// Restore persisted state so a restart neither re-ingests old
	// trades nor re-fires signals still on cooldown.
	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	if _, _, err := r.statePersister.LoadState(loadCtx); err != nil {
		logger.Warn("failed to load persisted state, starting fresh", zap.Error(err))
	}
	loadCancel()

	// Fetch the initial hot-market set
	if err := r.monitor.RefreshMarkets(ctx); err != nil {
		return fmt.Errorf("initial market fetch failed: %w", err)
	}

	// Connect the live trade feed if configured
	if r.clients.MarketEvents != nil {
		if err := r.connectLiveFeed(ctx); err != nil {
			logger.Warn("failed to connect live feed, falling back to polling", zap.Error(err))
		} else {
			r.monitor.AttachLiveFeed(r.clients.MarketEvents)
			go r.runWSReconnector(ctx)
		}
	}

	// Start health check server if enabled
	if cfg.HealthServer.Enabled {
		r.startHealthServer(cfg.HealthServer.Port)
		logger.Info("health server started", zap.Int("port", cfg.HealthServer.Port))
	}

	go r.monitor.Run(ctx)
	go r.walletWatcher.Run(ctx)
	go r.statePersister.Run(ctx)
	go r.commandHandler.Run(ctx, r.clients.Telegram.Updates())

	logger.Info("watcher started",
		zap.Int("markets", len(r.monitor.Markets())),
		zap.Bool("liveFeed", r.monitor.WSConnected()),
		zap.Bool("discordMirror", r.clients.Discord.Enabled()),
	)

	<-ctx.Done()
	logger.Info("runner shutting down")

	// Close the live feed connection
	if r.clients.MarketEvents != nil {
		_ = r.clients.MarketEvents.Close()
	}

	// Stop polling Telegram updates
	r.clients.Telegram.Stop()

	if err := r.clients.Discord.Close(); err != nil {
		logger.Warn("failed to close discord session", zap.Error(err))
	}

	// Shutdown health server
	if r.healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.healthServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	return nil
}

// connectLiveFeed connects the WebSocket and subscribes to the current
// token set.
func (r *Runner) connectLiveFeed(ctx context.Context) error {
	tokenIDs := r.monitor.TokenIDs()
	if len(tokenIDs) == 0 {
		return fmt.Errorf("no token IDs to subscribe to")
	}

	// Pass the parent context, not a timeout context.
	// ConnectMarket uses ctx for both dialing AND for a goroutine that
	// closes the connection when ctx is canceled. With a timeout context
	// here the connection would close as soon as this function returns.
	if err := r.clients.MarketEvents.ConnectMarket(ctx, tokenIDs); err != nil {
		return fmt.Errorf("connect market WebSocket: %w", err)
	}

	r.monitor.SetWSConnected(true)
	r.clients.Logger.Info("WebSocket connected",
		zap.Int("subscribedTokens", len(tokenIDs)),
	)

	return nil
}

// runWSReconnector monitors WebSocket health and reconnects if needed.
func (r *Runner) runWSReconnector(ctx context.Context) {
	logger := r.clients.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := r.clients.MarketEvents.Stats()

			// No messages for a while usually means a dead connection
			if stats.MessageCount > 0 && time.Since(stats.LastMessageAt) > 2*time.Minute {
				logger.Warn("WebSocket appears stale, attempting reconnect",
					zap.Duration("timeSinceLastMessage", time.Since(stats.LastMessageAt)),
				)
				r.attemptReconnect(ctx)
			}
		}
	}
}

// attemptReconnect attempts to reconnect the WebSocket.
func (r *Runner) attemptReconnect(ctx context.Context) {
	logger := r.clients.Logger

	// Close existing connection
	_ = r.clients.MarketEvents.Close()
	r.monitor.SetWSConnected(false)

	// Wait a moment before reconnecting
	time.Sleep(5 * time.Second)

	if err := r.connectLiveFeed(ctx); err != nil {
		logger.Error("failed to reconnect WebSocket", zap.Error(err))
	}
}

// GetStats returns the full service snapshot.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	// Build info
	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	// Service info
	stats.StartTime = r.startTime.UTC().Format(time.RFC3339)
	uptime := time.Since(r.startTime)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())

	// Live feed health
	stats.WebSocket.Enabled = r.clients.MarketEvents != nil
	if r.clients.MarketEvents != nil {
		wsStats := r.clients.MarketEvents.Stats()
		stats.WebSocket.MessageCount = wsStats.MessageCount
		if !wsStats.LastMessageAt.IsZero() {
			stats.WebSocket.LastMessageAt = wsStats.LastMessageAt.UTC().Format(time.RFC3339)
			stats.WebSocket.LastMessageAgo = time.Since(wsStats.LastMessageAt).Round(time.Second).String()
		}
	}

	if r.monitor != nil {
		stats.WebSocket.Connected = r.monitor.WSConnected()
		stats.Monitor = r.monitor.Stats()
		stats.RecentSignals = r.monitor.RecentSignals()
		stats.MarketNames = r.monitor.MarketNames()

		total := stats.Monitor.WolfPackSignals + stats.Monitor.SurgeSignals
		if uptime.Hours() > 0 {
			stats.SignalRate = float64(total) / uptime.Hours()
		}
		if !stats.Monitor.LastSignalAt.IsZero() {
			stats.LastSignalAt = stats.Monitor.LastSignalAt.UTC().Format(time.RFC3339)
			stats.LastSignalAgo = time.Since(stats.Monitor.LastSignalAt).Round(time.Second).String()
		}
	}
	if r.walletWatcher != nil {
		stats.WalletWatcher = r.walletWatcher.Stats()
	}
	if r.dispatcher != nil {
		stats.Dispatcher = r.dispatcher.Stats()
	}
	if r.commandHandler != nil {
		stats.Commands = r.commandHandler.Stats()
	}

	// Delivery channel status
	stats.Notifications.TelegramEnabled = r.clients.Telegram != nil
	stats.Notifications.DiscordEnabled = r.clients.Discord.Enabled()

	// Runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = memStats.HeapAlloc
	stats.Runtime.HeapSys = memStats.HeapSys
	stats.Runtime.HeapInuse = memStats.HeapInuse
	stats.Runtime.StackInuse = memStats.StackInuse
	stats.Runtime.NumGC = memStats.NumGC
	if memStats.LastGC > 0 {
		stats.Runtime.LastGC = time.Unix(0, int64(memStats.LastGC)).UTC().Format(time.RFC3339)
	}
	stats.Runtime.GoVersion = runtime.Version()
	stats.Runtime.NumCPU = runtime.NumCPU()
	stats.Runtime.GOOS = runtime.GOOS
	stats.Runtime.GOARCH = runtime.GOARCH

	return stats
}
