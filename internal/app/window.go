package app

import "time"

// Window retains trades within a fixed recency horizon. Pruning is
// eager: every Add drops whatever has aged out, against a single clock
// sample. Not safe for concurrent use; the goroutine that owns the
// detector serializes all access.
type Window struct {
	horizon time.Duration
	trades  []Trade
}

// NewWindow creates a window with the given retention horizon.
func NewWindow(horizon time.Duration) *Window {
	if horizon <= 0 {
		horizon = 60 * time.Second
	}
	return &Window{horizon: horizon}
}

// Add appends a trade and prunes every retained trade older than the
// horizon. The clock is sampled once per call.
func (w *Window) Add(t Trade) {
	w.trades = append(w.trades, t)
	w.pruneAt(time.Now().UnixMilli())
}

// pruneAt drops trades whose age relative to nowMs exceeds the horizon.
func (w *Window) pruneAt(nowMs int64) {
	cutoff := nowMs - w.horizon.Milliseconds()

	kept := w.trades[:0]
	for _, t := range w.trades {
		if t.Timestamp >= cutoff {
			kept = append(kept, t)
		}
	}
	w.trades = kept
}

// Size returns the number of retained trades.
func (w *Window) Size() int {
	return len(w.trades)
}

// Trades returns the retained trades. The slice is a view for
// evaluation; callers must not hold it across Add calls.
func (w *Window) Trades() []Trade {
	return w.trades
}

// ByMarket groups the retained trades by market identifier. The
// returned map is built fresh on every call.
func (w *Window) ByMarket() map[string][]Trade {
	groups := make(map[string][]Trade)
	for _, t := range w.trades {
		groups[t.MarketID] = append(groups[t.MarketID], t)
	}
	return groups
}

// Reset drops every retained trade.
func (w *Window) Reset() {
	w.trades = w.trades[:0]
}
