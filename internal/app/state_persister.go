package app

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/Kalifa21/the-watcher/clients/gist"
)

// StateSnapshot bundles the monitor's dedup keys and the detector's
// cooldown stamps into one persisted document.
type StateSnapshot struct {
	Version    int                 `json:"version"`
	Timestamp  time.Time           `json:"timestamp"`
	SeenTrades *SeenTradesSnapshot `json:"seen_trades,omitempty"`
	Cooldowns  *CooldownSnapshot   `json:"cooldowns,omitempty"`
}

// StatePersister periodically saves watcher state to a GitHub Gist so a
// restart neither re-alerts on trades it already ingested nor re-fires
// signals still on cooldown.
type StatePersister struct {
	logger        *zap.Logger
	storage       gist.Storage
	monitor       *MarketMonitor
	detector      *Detector
	saveInterval  time.Duration
	fileName      string
	maxSeenTrades int
}

// NewStatePersister creates a state persister.
func NewStatePersister(
	logger *zap.Logger,
	storage gist.Storage,
	monitor *MarketMonitor,
	detector *Detector,
	saveInterval time.Duration,
	fileName string,
	maxSeenTrades int,
) *StatePersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	if saveInterval <= 0 {
		saveInterval = 10 * time.Minute
	}
	if fileName == "" {
		fileName = "watcher_state.json"
	}
	if maxSeenTrades <= 0 {
		maxSeenTrades = 5000
	}

	return &StatePersister{
		logger:        logger,
		storage:       storage,
		monitor:       monitor,
		detector:      detector,
		saveInterval:  saveInterval,
		fileName:      fileName,
		maxSeenTrades: maxSeenTrades,
	}
}

// LoadState restores persisted state from the gist. Returns the number
// of seen-trade keys and cooldown stamps imported.
func (sp *StatePersister) LoadState(ctx context.Context) (int, int, error) {
	if !sp.storage.IsEnabled() {
		sp.logger.Info("gist client not configured, skipping state load")
		return 0, 0, nil
	}

	gistID := sp.storage.GetGistID()
	if gistID == "" {
		sp.logger.Info("no gist ID configured, skipping state load")
		return 0, 0, nil
	}

	content, err := sp.storage.Load(ctx, sp.fileName)
	if err != nil {
		sp.logger.Warn("failed to load state from gist",
			zap.String("gistID", gistID),
			zap.String("fileName", sp.fileName),
			zap.Error(err),
		)
		return 0, 0, err
	}

	if content == "" {
		sp.logger.Debug("state file is empty, starting fresh",
			zap.String("gistID", gistID),
			zap.String("fileName", sp.fileName),
		)
		return 0, 0, nil
	}

	var snapshot StateSnapshot
	if err := json.Unmarshal([]byte(content), &snapshot); err != nil {
		sp.logger.Warn("failed to parse state JSON",
			zap.String("gistID", gistID),
			zap.String("fileName", sp.fileName),
			zap.Int("contentLen", len(content)),
			zap.Error(err),
		)
		return 0, 0, err
	}

	seen := 0
	if sp.monitor != nil {
		seen = sp.monitor.ImportSeenTrades(snapshot.SeenTrades)
	}
	cooldowns := 0
	if sp.detector != nil {
		cooldowns = sp.detector.ImportCooldowns(snapshot.Cooldowns)
	}

	sp.logger.Info("loaded state from gist",
		zap.Int("seenTrades", seen),
		zap.Int("cooldowns", cooldowns),
	)

	return seen, cooldowns, nil
}

// SaveState writes the current state to the gist. The seen-trade set
// is capped so the file cannot grow without bound; dropping old keys
// only risks re-ingesting trades that have long left the window.
func (sp *StatePersister) SaveState(ctx context.Context) error {
	if !sp.storage.IsEnabled() {
		return nil
	}

	snapshot := StateSnapshot{
		Version:   1,
		Timestamp: time.Now(),
	}

	if sp.monitor != nil {
		seen := sp.monitor.ExportSeenTrades()
		if len(seen.Trades) > sp.maxSeenTrades {
			trimmed := len(seen.Trades) - sp.maxSeenTrades
			seen.Trades = seen.Trades[trimmed:]
			sp.logger.Info("trimmed seen trades for state save",
				zap.Int("saved", sp.maxSeenTrades),
				zap.Int("trimmed", trimmed),
			)
		}
		snapshot.SeenTrades = seen
	}
	if sp.detector != nil {
		snapshot.Cooldowns = sp.detector.ExportCooldowns()
	}

	if snapshot.SeenTrades != nil && len(snapshot.SeenTrades.Trades) == 0 &&
		snapshot.Cooldowns != nil && len(snapshot.Cooldowns.Cooldowns) == 0 {
		sp.logger.Debug("no state to save")
		return nil
	}

	if err := sp.storage.SaveJSON(ctx, sp.fileName, snapshot); err != nil {
		return err
	}

	seenCount := 0
	if snapshot.SeenTrades != nil {
		seenCount = len(snapshot.SeenTrades.Trades)
	}
	cooldownCount := 0
	if snapshot.Cooldowns != nil {
		cooldownCount = len(snapshot.Cooldowns.Cooldowns)
	}
	sp.logger.Info("saved state to gist",
		zap.String("gistID", sp.storage.GetGistID()),
		zap.Int("seenTrades", seenCount),
		zap.Int("cooldowns", cooldownCount),
	)

	return nil
}

// Run starts the periodic state save loop.
func (sp *StatePersister) Run(ctx context.Context) {
	if !sp.storage.IsEnabled() {
		sp.logger.Info("gist client not configured, state persistence disabled")
		return
	}

	ticker := time.NewTicker(sp.saveInterval)
	defer ticker.Stop()

	sp.logger.Info("state persister started",
		zap.Duration("saveInterval", sp.saveInterval),
	)

	for {
		select {
		case <-ctx.Done():
			// Final save on shutdown
			saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := sp.SaveState(saveCtx); err != nil {
				sp.logger.Error("failed to save state on shutdown", zap.Error(err))
			}
			cancel()
			sp.logger.Info("state persister stopped")
			return

		case <-ticker.C:
			if err := sp.SaveState(ctx); err != nil {
				sp.logger.Warn("failed to save state", zap.Error(err))
			}
		}
	}
}
