package app

import (
	"testing"
	"time"
)

func TestNewWindow_DefaultHorizon(t *testing.T) {
	w := NewWindow(0)
	if w.horizon != 60*time.Second {
		t.Errorf("unexpected default horizon: %v", w.horizon)
	}
}

func TestWindowAdd_RetainsRecent(t *testing.T) {
	w := NewWindow(60 * time.Second)
	now := time.Now().UnixMilli()

	w.Add(Trade{Timestamp: now, MarketID: "m1", AmountUSD: 100})
	w.Add(Trade{Timestamp: now - 30_000, MarketID: "m1", AmountUSD: 200})

	if w.Size() != 2 {
		t.Errorf("expected 2 retained trades, got %d", w.Size())
	}
}

func TestWindowAdd_PrunesExpired(t *testing.T) {
	w := NewWindow(60 * time.Second)
	now := time.Now().UnixMilli()

	w.Add(Trade{Timestamp: now - 120_000, MarketID: "m1", AmountUSD: 100})
	w.Add(Trade{Timestamp: now, MarketID: "m1", AmountUSD: 200})

	if w.Size() != 1 {
		t.Fatalf("expected expired trade to be pruned, got %d retained", w.Size())
	}
	if w.Trades()[0].AmountUSD != 200 {
		t.Error("expected the recent trade to survive")
	}
}

func TestWindowPruneAt_Boundary(t *testing.T) {
	w := NewWindow(60 * time.Second)
	now := int64(1_700_000_000_000)

	// Exactly at the cutoff is retained, one ms older is not.
	w.trades = []Trade{
		{Timestamp: now - 60_000, MarketID: "at-cutoff"},
		{Timestamp: now - 60_001, MarketID: "too-old"},
	}
	w.pruneAt(now)

	if w.Size() != 1 {
		t.Fatalf("expected 1 retained trade, got %d", w.Size())
	}
	if w.Trades()[0].MarketID != "at-cutoff" {
		t.Errorf("unexpected survivor: %s", w.Trades()[0].MarketID)
	}
}

func TestWindowByMarket(t *testing.T) {
	w := NewWindow(time.Hour)
	now := time.Now().UnixMilli()

	w.Add(Trade{Timestamp: now, MarketID: "m1", AmountUSD: 1})
	w.Add(Trade{Timestamp: now, MarketID: "m2", AmountUSD: 2})
	w.Add(Trade{Timestamp: now, MarketID: "m1", AmountUSD: 3})

	groups := w.ByMarket()
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(groups["m1"]) != 2 {
		t.Errorf("expected 2 trades for m1, got %d", len(groups["m1"]))
	}
	if len(groups["m2"]) != 1 {
		t.Errorf("expected 1 trade for m2, got %d", len(groups["m2"]))
	}
}

func TestWindowReset(t *testing.T) {
	w := NewWindow(time.Hour)
	w.Add(Trade{Timestamp: time.Now().UnixMilli(), MarketID: "m1"})

	w.Reset()

	if w.Size() != 0 {
		t.Errorf("expected empty window after reset, got %d", w.Size())
	}
}
