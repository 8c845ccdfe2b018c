package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/Kalifa21/the-watcher/clients/polymarket"
	"github.com/Kalifa21/the-watcher/internal/store"
	"go.uber.org/zap"
)

// ActivitySource yields the most recent activity record for a wallet
// address. Satisfied by the polymarket client.
type ActivitySource interface {
	GetLatestActivity(ctx context.Context, wallet string) (*polymarket.Activity, error)
}

// WalletAlertSink delivers a wallet alert to its owning recipient.
// Satisfied by the dispatcher.
type WalletAlertSink interface {
	SendWalletAlert(chatID int64, text string) error
}

// WalletWatcherStats holds counters for the stats endpoint.
type WalletWatcherStats struct {
	Passes     int       `json:"passes"`
	Checks     int       `json:"checks"`
	Alerts     int       `json:"alerts"`
	Errors     int       `json:"errors"`
	LastPassAt time.Time `json:"last_pass_at"`
}

// WalletWatcher polls every watched wallet for new activity and alerts
// the owning recipient when a wallet's latest trade changes. It runs
// independently of the window/detector pipeline.
type WalletWatcher struct {
	logger   *zap.Logger
	activity ActivitySource
	store    store.Store
	sink     WalletAlertSink

	pollInterval time.Duration

	statsMu sync.Mutex
	stats   WalletWatcherStats
}

// NewWalletWatcher creates a watcher polling at the given interval.
func NewWalletWatcher(
	logger *zap.Logger,
	activity ActivitySource,
	st store.Store,
	sink WalletAlertSink,
	pollInterval time.Duration,
) *WalletWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &WalletWatcher{
		logger:       logger,
		activity:     activity,
		store:        st,
		sink:         sink,
		pollInterval: pollInterval,
	}
}

// activityFingerprint identifies an activity record by its transaction
// identifier, falling back to a content hash when the upstream omits
// one.
func activityFingerprint(act *polymarket.Activity) string {
	if act.TransactionHash != "" {
		return act.TransactionHash
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%s:%f",
		act.GetTimestamp(), act.ConditionID, act.Side, act.GetSize())))
	return hex.EncodeToString(sum[:16])
}

// checkWallet fetches the latest activity for one wallet and compares
// fingerprints. The first-ever check stores the fingerprint silently.
// A changed fingerprint whose record is an actual trade returns the
// rendered alert text; splits, merges, redeems and the like are
// skipped without touching the stored fingerprint. Fingerprint store
// failures are logged, never fatal to the check.
func (ww *WalletWatcher) checkWallet(ctx context.Context, wal store.WatchedWallet) (string, error) {
	ww.countCheck()

	act, err := ww.activity.GetLatestActivity(ctx, wal.Address)
	if err != nil {
		return "", fmt.Errorf("latest activity: %w", err)
	}
	if act == nil {
		return "", nil
	}

	fp := activityFingerprint(act)
	if fp == "" {
		return "", nil
	}

	// First sync: record silently so registration doesn't flood.
	if wal.Fingerprint == "" {
		if err := ww.store.UpdateFingerprint(ctx, wal.ID, fp); err != nil {
			ww.logger.Warn("failed to store initial fingerprint",
				zap.String("wallet", shortID(wal.Address)),
				zap.Error(err),
			)
		}
		return "", nil
	}

	if fp == wal.Fingerprint {
		return "", nil
	}

	if act.Type != "TRADE" {
		ww.logger.Debug("skipping non-trade activity",
			zap.String("wallet", shortID(wal.Address)),
			zap.String("type", act.Type),
		)
		return "", nil
	}

	if err := ww.store.UpdateFingerprint(ctx, wal.ID, fp); err != nil {
		ww.logger.Warn("failed to store fingerprint",
			zap.String("wallet", shortID(wal.Address)),
			zap.Error(err),
		)
	}

	return FormatWalletAlert(wal.Name, wal.Address, act), nil
}

// PollPass checks every watched wallet once. A failing wallet is
// logged and skipped; it never aborts the rest of the pass.
func (ww *WalletWatcher) PollPass(ctx context.Context) {
	wallets, err := ww.store.AllWallets(ctx)
	if err != nil {
		ww.logger.Warn("failed to list watched wallets", zap.Error(err))
		return
	}

	alerts := 0
	for _, wal := range wallets {
		if ctx.Err() != nil {
			return
		}

		text, err := ww.checkWallet(ctx, wal)
		if err != nil {
			ww.countError()
			ww.logger.Warn("wallet check failed",
				zap.String("wallet", shortID(wal.Address)),
				zap.Error(err),
			)
			continue
		}
		if text == "" {
			continue
		}

		if err := ww.sink.SendWalletAlert(wal.ChatID, text); err != nil {
			ww.logger.Error("failed to send wallet alert",
				zap.Int64("chatID", wal.ChatID),
				zap.String("wallet", shortID(wal.Address)),
				zap.Error(err),
			)
			continue
		}
		alerts++
		ww.countAlert()
	}

	ww.countPass()
	if alerts > 0 {
		ww.logger.Info("wallet poll pass complete",
			zap.Int("wallets", len(wallets)),
			zap.Int("alerts", alerts),
		)
	}
}

// Scan runs one pass over a single recipient's wallets and returns a
// human-readable summary. Individual wallet failures are logged and
// reflected in the summary; the caller always gets exactly one result
// to deliver.
func (ww *WalletWatcher) Scan(ctx context.Context, chatID int64) (string, error) {
	wallets, err := ww.store.WatchedWallets(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("list watched wallets: %w", err)
	}
	if len(wallets) == 0 {
		return "Your watchlist is empty. Use /add to watch a wallet.", nil
	}

	var findings []string
	failed := 0
	for _, wal := range wallets {
		text, err := ww.checkWallet(ctx, wal)
		if err != nil {
			failed++
			ww.countError()
			ww.logger.Warn("wallet scan check failed",
				zap.String("wallet", shortID(wal.Address)),
				zap.Error(err),
			)
			continue
		}
		if text != "" {
			findings = append(findings, text)
		}
	}

	if len(findings) == 0 {
		summary := fmt.Sprintf("No new activity across %d watched wallet(s).", len(wallets))
		if failed > 0 {
			summary += fmt.Sprintf(" %d check(s) failed and will retry on the next cycle.", failed)
		}
		return summary, nil
	}

	return joinParagraphs(findings), nil
}

// Run drives the poll loop until ctx is cancelled. Each pass gets its
// own network timeout.
func (ww *WalletWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(ww.pollInterval)
	defer ticker.Stop()

	ww.logger.Info("wallet watcher started",
		zap.Duration("pollInterval", ww.pollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			ww.logger.Info("wallet watcher stopped")
			return
		case <-ticker.C:
			passCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
			ww.PollPass(passCtx)
			cancel()
		}
	}
}

// Stats returns a copy of the watcher counters.
func (ww *WalletWatcher) Stats() WalletWatcherStats {
	ww.statsMu.Lock()
	defer ww.statsMu.Unlock()
	return ww.stats
}

func (ww *WalletWatcher) countPass() {
	ww.statsMu.Lock()
	ww.stats.Passes++
	ww.stats.LastPassAt = time.Now()
	ww.statsMu.Unlock()
}

func (ww *WalletWatcher) countCheck() {
	ww.statsMu.Lock()
	ww.stats.Checks++
	ww.statsMu.Unlock()
}

func (ww *WalletWatcher) countAlert() {
	ww.statsMu.Lock()
	ww.stats.Alerts++
	ww.statsMu.Unlock()
}

func (ww *WalletWatcher) countError() {
	ww.statsMu.Lock()
	ww.stats.Errors++
	ww.statsMu.Unlock()
}
