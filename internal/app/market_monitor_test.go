package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/Kalifa21/the-watcher/clients/polymarket"
)

func newTestMonitor(cfg MarketMonitorConfig) (*MarketMonitor, *MockMarketFeed, *MockSignalSink) {
	feed := NewMockMarketFeed()
	sink := &MockSignalSink{}
	detector := NewDetector(nil, DefaultDetectorConfig())
	return NewMarketMonitor(nil, feed, detector, sink, cfg), feed, sink
}

func gammaMarket(conditionID, question, slug string) polymarket.GammaMarket {
	return polymarket.GammaMarket{
		ConditionID:  conditionID,
		Question:     question,
		Slug:         slug,
		Outcomes:     json.RawMessage(`["Yes","No"]`),
		ClobTokenIDs: json.RawMessage(fmt.Sprintf(`["%s-yes","%s-no"]`, conditionID, conditionID)),
	}
}

func restTrade(market, wallet, txHash string, size, price float64) polymarket.Trade {
	return polymarket.Trade{
		ID:              txHash,
		ProxyWallet:     wallet,
		Side:            "BUY",
		Size:            json.RawMessage(fmt.Sprintf("%g", size)),
		Price:           json.RawMessage(fmt.Sprintf("%g", price)),
		Timestamp:       json.RawMessage(fmt.Sprintf("%d", time.Now().Unix())),
		ConditionID:     market,
		TransactionHash: txHash,
		Title:           "Market " + market,
	}
}

func liveTradeFrame(assetID, txHash, side, size, price string) json.RawMessage {
	frame := map[string]string{
		"event_type":       "trade",
		"asset_id":         assetID,
		"price":            price,
		"size":             size,
		"side":             side,
		"taker_address":    "0xtaker",
		"timestamp":        fmt.Sprintf("%d", time.Now().UnixMilli()),
		"transaction_hash": txHash,
	}
	b, err := json.Marshal(frame)
	if err != nil {
		panic(err)
	}
	return b
}

func TestUpdateMarkets(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	err := m.UpdateMarkets([]polymarket.GammaMarket{
		gammaMarket("0xm1", "Market One?", "market-one"),
		gammaMarket("0xm2", "Market Two?", "market-two"),
		{Question: "missing condition id"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := m.Markets(); !reflect.DeepEqual(got, []string{"0xm1", "0xm2"}) {
		t.Errorf("unexpected markets: %v", got)
	}
	if got := m.TokenIDs(); len(got) != 4 {
		t.Errorf("expected 4 tokens, got %v", got)
	}
	if got := m.MarketNames(); !reflect.DeepEqual(got, []string{"Market One?", "Market Two?"}) {
		t.Errorf("unexpected names: %v", got)
	}

	info := m.infoForToken("0xm1-yes")
	if info == nil {
		t.Fatal("expected token index entry")
	}
	if info.ConditionID != "0xm1" {
		t.Errorf("unexpected condition ID: %s", info.ConditionID)
	}
	if got := info.OutcomeForToken("0xm1-yes"); got != "Yes" {
		t.Errorf("unexpected outcome: %s", got)
	}
	if got := info.OutcomeForToken("0xm1-no"); got != "No" {
		t.Errorf("unexpected outcome: %s", got)
	}
	if got := info.OutcomeForToken("0xother"); got != "" {
		t.Errorf("expected empty outcome for unknown token, got %s", got)
	}
}

func TestUpdateMarkets_NoUsable(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	err := m.UpdateMarkets([]polymarket.GammaMarket{{Question: "no id"}})
	if err == nil {
		t.Fatal("expected error for update with no usable markets")
	}
}

func TestUpdateMarkets_LiveSubscriptionDiff(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())
	live := NewMockLiveFeed()
	m.AttachLiveFeed(live)
	m.SetWSConnected(true)

	if err := m.UpdateMarkets([]polymarket.GammaMarket{gammaMarket("0xm1", "One?", "one")}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	subs := live.Subscribed()
	if len(subs) != 1 || !reflect.DeepEqual(subs[0], []string{"0xm1-yes", "0xm1-no"}) {
		t.Fatalf("unexpected subscriptions after first update: %v", subs)
	}

	if err := m.UpdateMarkets([]polymarket.GammaMarket{gammaMarket("0xm2", "Two?", "two")}); err != nil {
		t.Fatalf("second update: %v", err)
	}

	subs = live.Subscribed()
	if len(subs) != 2 || !reflect.DeepEqual(subs[1], []string{"0xm2-yes", "0xm2-no"}) {
		t.Errorf("unexpected subscriptions after second update: %v", subs)
	}
	unsubs := live.Unsubscribed()
	if len(unsubs) != 1 || !reflect.DeepEqual(unsubs[0], []string{"0xm1-yes", "0xm1-no"}) {
		t.Errorf("unexpected unsubscriptions: %v", unsubs)
	}
}

func TestUpdateMarkets_NoDiffWhileDisconnected(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())
	live := NewMockLiveFeed()
	m.AttachLiveFeed(live)

	if err := m.UpdateMarkets([]polymarket.GammaMarket{gammaMarket("0xm1", "One?", "one")}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if subs := live.Subscribed(); len(subs) != 0 {
		t.Errorf("expected no subscription calls while disconnected, got %v", subs)
	}
}

func TestRefreshMarkets(t *testing.T) {
	m, feed, _ := newTestMonitor(DefaultMarketMonitorConfig())
	ctx := context.Background()

	feed.SetMarkets([]polymarket.GammaMarket{gammaMarket("0xm1", "One?", "one")}, nil)
	if err := m.RefreshMarkets(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Markets(); len(got) != 1 || got[0] != "0xm1" {
		t.Errorf("unexpected markets: %v", got)
	}

	feed.SetMarkets(nil, errors.New("gamma down"))
	if err := m.RefreshMarkets(ctx); err == nil {
		t.Error("expected fetch error")
	}

	feed.SetMarkets([]polymarket.GammaMarket{}, nil)
	if err := m.RefreshMarkets(ctx); err == nil {
		t.Error("expected error for empty market list")
	}
}

func TestIngestRecord_DropsSells(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	rec := restTrade("0xm1", "0xa", "0xt1", 100, 0.5)
	rec.Side = "SELL"

	if m.ingestRecord(&rec) {
		t.Error("expected sell to be dropped")
	}

	stats := m.Stats()
	if stats.SellsDropped != 1 {
		t.Errorf("expected 1 sell dropped, got %d", stats.SellsDropped)
	}
	if stats.TradesIngested != 0 {
		t.Errorf("expected 0 ingested, got %d", stats.TradesIngested)
	}
}

func TestIngestRecord_ForwardSells(t *testing.T) {
	cfg := DefaultMarketMonitorConfig()
	cfg.ForwardSells = true
	m, _, _ := newTestMonitor(cfg)

	rec := restTrade("0xm1", "0xa", "0xt1", 100, 0.5)
	rec.Side = "SELL"

	if !m.ingestRecord(&rec) {
		t.Error("expected sell to be ingested")
	}
	if stats := m.Stats(); stats.TradesIngested != 1 {
		t.Errorf("expected 1 ingested, got %d", stats.TradesIngested)
	}
}

func TestIngestRecord_Dedup(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	rec := restTrade("0xm1", "0xa", "0xt1", 100, 0.5)
	if !m.ingestRecord(&rec) {
		t.Fatal("expected first ingest to succeed")
	}
	dup := restTrade("0xm1", "0xa", "0xt1", 100, 0.5)
	if m.ingestRecord(&dup) {
		t.Error("expected duplicate to be dropped")
	}

	// One transaction can touch several markets; the key is scoped.
	other := restTrade("0xm2", "0xa", "0xt1", 100, 0.5)
	if !m.ingestRecord(&other) {
		t.Error("expected same hash on another market to be ingested")
	}

	stats := m.Stats()
	if stats.TradesIngested != 2 {
		t.Errorf("expected 2 ingested, got %d", stats.TradesIngested)
	}
	if stats.TradesDeduped != 1 {
		t.Errorf("expected 1 deduped, got %d", stats.TradesDeduped)
	}
}

func TestSeenTradesEviction(t *testing.T) {
	cfg := DefaultMarketMonitorConfig()
	cfg.MaxSeenTrades = 5
	m, _, _ := newTestMonitor(cfg)

	// Eviction triggers when the set passes twice the cap.
	for i := 0; i < 11; i++ {
		m.alreadySeen(fmt.Sprintf("key-%d", i))
	}

	if got := m.SeenTradesCount(); got != 5 {
		t.Errorf("expected eviction down to cap, got %d", got)
	}
}

func TestPollOnce_DetectsAndDispatches(t *testing.T) {
	m, feed, sink := newTestMonitor(DefaultMarketMonitorConfig())
	ctx := context.Background()

	err := m.UpdateMarkets([]polymarket.GammaMarket{
		gammaMarket("0xm1", "Hot Market?", "hot-market"),
		gammaMarket("0xm2", "Quiet Market?", "quiet-market"),
	})
	if err != nil {
		t.Fatalf("update markets: %v", err)
	}

	feed.SetTrades("0xm1", []polymarket.Trade{
		restTrade("0xm1", "0xa", "0xt1", 8000, 1),
		restTrade("0xm1", "0xb", "0xt2", 4000, 1),
		restTrade("0xm1", "0xc", "0xt3", 2000, 1),
	})
	feed.SetTrades("0xm2", []polymarket.Trade{
		restTrade("0xm2", "0xd", "0xt4", 100, 1),
	})

	m.pollOnce(ctx)

	signals := sink.Signals()
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if signals[0].Kind != SignalWolfPack {
		t.Errorf("expected WOLF_PACK, got %s", signals[0].Kind)
	}
	if signals[0].MarketID != "0xm1" {
		t.Errorf("unexpected market: %s", signals[0].MarketID)
	}

	calls := feed.TradeCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 per-market fetches, got %d", len(calls))
	}
	seen := map[string]bool{}
	for _, c := range calls {
		seen[c] = true
	}
	if !seen["0xm1"] || !seen["0xm2"] {
		t.Errorf("expected both markets fetched, got %v", calls)
	}

	stats := m.Stats()
	if stats.TradesIngested != 4 {
		t.Errorf("expected 4 ingested, got %d", stats.TradesIngested)
	}
	if stats.Evaluations != 1 {
		t.Errorf("expected 1 evaluation, got %d", stats.Evaluations)
	}
	if stats.WolfPackSignals != 1 {
		t.Errorf("expected 1 wolf pack counted, got %d", stats.WolfPackSignals)
	}

	// The same records come back on the next poll; dedup and the market
	// cooldown keep the output quiet.
	m.pollOnce(ctx)

	if got := sink.Signals(); len(got) != 1 {
		t.Errorf("expected no repeat signal, got %d", len(got))
	}
	stats = m.Stats()
	if stats.TradesDeduped != 4 {
		t.Errorf("expected 4 deduped on repoll, got %d", stats.TradesDeduped)
	}
	if stats.Evaluations != 2 {
		t.Errorf("expected 2 evaluations, got %d", stats.Evaluations)
	}
}

func TestPollOnce_NoMarkets(t *testing.T) {
	m, feed, _ := newTestMonitor(DefaultMarketMonitorConfig())

	m.pollOnce(context.Background())

	if calls := feed.TradeCalls(); len(calls) != 0 {
		t.Errorf("expected no fetches, got %v", calls)
	}
	if stats := m.Stats(); stats.Evaluations != 0 {
		t.Errorf("expected no evaluation without markets, got %d", stats.Evaluations)
	}
}

func TestPollOnce_FetchFailure(t *testing.T) {
	m, feed, sink := newTestMonitor(DefaultMarketMonitorConfig())

	if err := m.UpdateMarkets([]polymarket.GammaMarket{gammaMarket("0xm1", "One?", "one")}); err != nil {
		t.Fatalf("update markets: %v", err)
	}
	feed.SetTradesError(errors.New("data api down"))

	m.pollOnce(context.Background())

	if got := sink.Signals(); len(got) != 0 {
		t.Errorf("expected no signals, got %d", len(got))
	}
	stats := m.Stats()
	if stats.TradesIngested != 0 {
		t.Errorf("expected 0 ingested, got %d", stats.TradesIngested)
	}
	// Evaluation still runs on whatever the window holds.
	if stats.Evaluations != 1 {
		t.Errorf("expected 1 evaluation, got %d", stats.Evaluations)
	}
}

func TestHandleLiveEvent(t *testing.T) {
	m, _, sink := newTestMonitor(DefaultMarketMonitorConfig())
	ctx := context.Background()

	if err := m.UpdateMarkets([]polymarket.GammaMarket{gammaMarket("0xm1", "Hot Market?", "hot-market")}); err != nil {
		t.Fatalf("update markets: %v", err)
	}

	m.HandleLiveEvent(liveTradeFrame("0xm1-yes", "0xhash1", "BUY", "40000", "0.5"))
	m.evaluateAndDispatch(ctx)

	signals := sink.Signals()
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}

	sig := signals[0]
	if sig.Kind != SignalVolumeSurge {
		t.Errorf("expected VOLUME_SURGE, got %s", sig.Kind)
	}
	if sig.MarketID != "0xm1" {
		t.Errorf("unexpected market: %s", sig.MarketID)
	}
	if sig.MarketName != "Hot Market?" {
		t.Errorf("expected metadata from token index, got %q", sig.MarketName)
	}
	if sig.Outcome != "Yes" {
		t.Errorf("unexpected outcome: %s", sig.Outcome)
	}
}

func TestHandleLiveEvent_UnknownToken(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	if err := m.UpdateMarkets([]polymarket.GammaMarket{gammaMarket("0xm1", "One?", "one")}); err != nil {
		t.Fatalf("update markets: %v", err)
	}

	m.HandleLiveEvent(liveTradeFrame("0xstale-yes", "0xhash1", "BUY", "100", "0.5"))

	if stats := m.Stats(); stats.TradesIngested != 0 {
		t.Errorf("expected unknown-token frame dropped, got %d ingested", stats.TradesIngested)
	}
}

func TestHandleLiveEvent_NonTradeFrames(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	if err := m.UpdateMarkets([]polymarket.GammaMarket{gammaMarket("0xm1", "One?", "one")}); err != nil {
		t.Fatalf("update markets: %v", err)
	}

	m.HandleLiveEvent(json.RawMessage(`{"event_type":"book","asset_id":"0xm1-yes"}`))
	m.HandleLiveEvent(json.RawMessage(`{not json`))
	m.HandleLiveEvent(json.RawMessage(`{}`))

	if stats := m.Stats(); stats.TradesIngested != 0 {
		t.Errorf("expected non-trade frames dropped, got %d ingested", stats.TradesIngested)
	}
}

func TestHandleLiveEvent_DropsSells(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	if err := m.UpdateMarkets([]polymarket.GammaMarket{gammaMarket("0xm1", "One?", "one")}); err != nil {
		t.Fatalf("update markets: %v", err)
	}

	m.HandleLiveEvent(liveTradeFrame("0xm1-yes", "0xhash1", "SELL", "100", "0.5"))

	stats := m.Stats()
	if stats.SellsDropped != 1 {
		t.Errorf("expected 1 sell dropped, got %d", stats.SellsDropped)
	}
	if stats.TradesIngested != 0 {
		t.Errorf("expected 0 ingested, got %d", stats.TradesIngested)
	}
}

func TestHandleLiveEvent_Dedup(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	if err := m.UpdateMarkets([]polymarket.GammaMarket{gammaMarket("0xm1", "One?", "one")}); err != nil {
		t.Fatalf("update markets: %v", err)
	}

	frame := liveTradeFrame("0xm1-yes", "0xhash1", "BUY", "100", "0.5")
	m.HandleLiveEvent(frame)
	m.HandleLiveEvent(frame)

	stats := m.Stats()
	if stats.TradesIngested != 1 {
		t.Errorf("expected 1 ingested, got %d", stats.TradesIngested)
	}
	if stats.TradesDeduped != 1 {
		t.Errorf("expected 1 deduped, got %d", stats.TradesDeduped)
	}
}

func TestHandleLiveEvent_NoIDSkipsDedup(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	if err := m.UpdateMarkets([]polymarket.GammaMarket{gammaMarket("0xm1", "One?", "one")}); err != nil {
		t.Fatalf("update markets: %v", err)
	}

	// last_trade_price frames often carry no transaction identifier;
	// without one there is nothing to dedup on.
	frame := json.RawMessage(`{"event_type":"last_trade_price","asset_id":"0xm1-yes","price":"0.5","size":"100","side":"BUY"}`)
	m.HandleLiveEvent(frame)
	m.HandleLiveEvent(frame)

	stats := m.Stats()
	if stats.TradesIngested != 2 {
		t.Errorf("expected both frames ingested, got %d", stats.TradesIngested)
	}
	if stats.TradesDeduped != 0 {
		t.Errorf("expected 0 deduped, got %d", stats.TradesDeduped)
	}
}

func TestExportImportSeenTrades(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	m.alreadySeen("0xt1:0xm1")
	m.alreadySeen("0xt2:0xm1")

	snapshot := m.ExportSeenTrades()
	if len(snapshot.Trades) != 2 {
		t.Fatalf("expected 2 exported keys, got %d", len(snapshot.Trades))
	}

	fresh, _, _ := newTestMonitor(DefaultMarketMonitorConfig())
	if imported := fresh.ImportSeenTrades(snapshot); imported != 2 {
		t.Errorf("expected 2 imported, got %d", imported)
	}
	if imported := fresh.ImportSeenTrades(snapshot); imported != 0 {
		t.Errorf("expected re-import to be a no-op, got %d", imported)
	}
	if imported := fresh.ImportSeenTrades(nil); imported != 0 {
		t.Errorf("expected nil snapshot to import 0, got %d", imported)
	}

	// Restored keys suppress re-ingestion.
	if !fresh.alreadySeen("0xt1:0xm1") {
		t.Error("expected imported key to be seen")
	}
}

func TestRecentSignals(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	for i := 1; i <= 12; i++ {
		m.recordSignal(Signal{Kind: SignalWolfPack, MarketID: fmt.Sprintf("m%d", i)})
	}

	recent := m.RecentSignals()
	if len(recent) != maxRecentSignals {
		t.Fatalf("expected feed capped at %d, got %d", maxRecentSignals, len(recent))
	}
	if recent[0].MarketID != "m12" {
		t.Errorf("expected newest first, got %s", recent[0].MarketID)
	}
	if recent[len(recent)-1].MarketID != "m3" {
		t.Errorf("expected oldest retained to be m3, got %s", recent[len(recent)-1].MarketID)
	}
}

func TestMonitorStats_WSConnected(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultMarketMonitorConfig())

	if m.Stats().WSConnected {
		t.Error("expected disconnected by default")
	}
	m.SetWSConnected(true)
	if !m.Stats().WSConnected {
		t.Error("expected connected after SetWSConnected")
	}
}
