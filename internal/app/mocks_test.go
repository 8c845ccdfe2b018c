package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Kalifa21/the-watcher/clients/discord"
	"github.com/Kalifa21/the-watcher/clients/gist"
	"github.com/Kalifa21/the-watcher/clients/marketevents"
	"github.com/Kalifa21/the-watcher/clients/polymarket"
	"github.com/Kalifa21/the-watcher/internal/store"
)

var (
	_ gist.Storage    = (*MockGistStorage)(nil)
	_ MarketFeed      = (*MockMarketFeed)(nil)
	_ LiveFeed        = (*MockLiveFeed)(nil)
	_ ActivitySource  = (*MockActivitySource)(nil)
	_ Messenger       = (*MockMessenger)(nil)
	_ EmbedPoster     = (*MockEmbedPoster)(nil)
	_ SignalSink      = (*MockSignalSink)(nil)
	_ WalletAlertSink = (*MockWalletAlertSink)(nil)
	_ Scanner         = (*MockScanner)(nil)
	_ store.Store     = (*MockStore)(nil)
)

// MockGistStorage is a mock implementation of gist.Storage for testing.
type MockGistStorage struct {
	mu      sync.RWMutex
	files   map[string]string
	gistID  string
	enabled bool
	loadErr error
	saveErr error
}

// NewMockGistStorage creates a new mock gist storage.
func NewMockGistStorage() *MockGistStorage {
	return &MockGistStorage{
		files:   make(map[string]string),
		gistID:  "mock-gist-id",
		enabled: true,
	}
}

func (m *MockGistStorage) IsEnabled() bool {
	return m.enabled
}

// SetEnabled sets whether the mock is enabled.
func (m *MockGistStorage) SetEnabled(enabled bool) {
	m.enabled = enabled
}

func (m *MockGistStorage) GetGistID() string {
	return m.gistID
}

// SetGistID sets the mock gist ID.
func (m *MockGistStorage) SetGistID(id string) {
	m.gistID = id
}

func (m *MockGistStorage) Load(ctx context.Context, filename string) (string, error) {
	if m.loadErr != nil {
		return "", m.loadErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[filename], nil
}

func (m *MockGistStorage) Save(ctx context.Context, filename, content string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filename] = content
	return nil
}

func (m *MockGistStorage) LoadJSON(ctx context.Context, filename string, dest any) error {
	content, err := m.Load(ctx, filename)
	if err != nil {
		return err
	}
	if content == "" {
		return fmt.Errorf("file %q not found in gist", filename)
	}
	return json.Unmarshal([]byte(content), dest)
}

func (m *MockGistStorage) SaveJSON(ctx context.Context, filename string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return m.Save(ctx, filename, string(jsonData))
}

// SetLoadError sets an error to be returned on Load calls.
func (m *MockGistStorage) SetLoadError(err error) {
	m.loadErr = err
}

// SetSaveError sets an error to be returned on Save calls.
func (m *MockGistStorage) SetSaveError(err error) {
	m.saveErr = err
}

// SetContent sets the content for a filename.
func (m *MockGistStorage) SetContent(filename, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filename] = content
}

// GetContent returns the content for a filename.
func (m *MockGistStorage) GetContent(filename string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[filename]
}

// MockMarketFeed is a mock implementation of MarketFeed.
type MockMarketFeed struct {
	mu         sync.Mutex
	markets    []polymarket.GammaMarket
	marketsErr error
	trades     map[string][]polymarket.Trade
	tradesErr  error
	tradeCalls []string
}

// NewMockMarketFeed creates a new mock market feed.
func NewMockMarketFeed() *MockMarketFeed {
	return &MockMarketFeed{
		trades: make(map[string][]polymarket.Trade),
	}
}

// SetMarkets sets the markets GetTopMarketsByVolume returns.
func (m *MockMarketFeed) SetMarkets(markets []polymarket.GammaMarket, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets = markets
	m.marketsErr = err
}

// SetTrades sets the trades GetTrades returns for a condition ID.
func (m *MockMarketFeed) SetTrades(market string, trades []polymarket.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[market] = trades
}

// SetTradesError sets an error to be returned on GetTrades calls.
func (m *MockMarketFeed) SetTradesError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tradesErr = err
}

func (m *MockMarketFeed) GetTopMarketsByVolume(ctx context.Context, limit int) ([]polymarket.GammaMarket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marketsErr != nil {
		return nil, m.marketsErr
	}
	if limit > 0 && limit < len(m.markets) {
		return m.markets[:limit], nil
	}
	return m.markets, nil
}

func (m *MockMarketFeed) GetTrades(ctx context.Context, markets []string, limit int) ([]polymarket.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tradesErr != nil {
		return nil, m.tradesErr
	}
	var out []polymarket.Trade
	for _, id := range markets {
		m.tradeCalls = append(m.tradeCalls, id)
		out = append(out, m.trades[id]...)
	}
	return out, nil
}

// TradeCalls returns the condition IDs GetTrades was called with.
func (m *MockMarketFeed) TradeCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.tradeCalls))
	copy(out, m.tradeCalls)
	return out
}

// MockLiveFeed is a mock implementation of LiveFeed.
type MockLiveFeed struct {
	mu           sync.Mutex
	msgCh        chan json.RawMessage
	errCh        chan error
	connectErr   error
	connected    [][]string
	subscribed   [][]string
	unsubscribed [][]string
}

// NewMockLiveFeed creates a new mock live feed with buffered channels.
func NewMockLiveFeed() *MockLiveFeed {
	return &MockLiveFeed{
		msgCh: make(chan json.RawMessage, 64),
		errCh: make(chan error, 8),
	}
}

func (m *MockLiveFeed) ConnectMarket(ctx context.Context, assetIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = append(m.connected, assetIDs)
	return nil
}

func (m *MockLiveFeed) SubscribeAssets(assetIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, assetIDs)
	return nil
}

func (m *MockLiveFeed) UnsubscribeAssets(assetIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, assetIDs)
	return nil
}

func (m *MockLiveFeed) Messages() <-chan json.RawMessage {
	return m.msgCh
}

func (m *MockLiveFeed) Errors() <-chan error {
	return m.errCh
}

func (m *MockLiveFeed) Stats() marketevents.WSStats {
	return marketevents.WSStats{}
}

func (m *MockLiveFeed) Close() error {
	return nil
}

// Subscribed returns every SubscribeAssets call in order.
func (m *MockLiveFeed) Subscribed() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.subscribed))
	copy(out, m.subscribed)
	return out
}

// Unsubscribed returns every UnsubscribeAssets call in order.
func (m *MockLiveFeed) Unsubscribed() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.unsubscribed))
	copy(out, m.unsubscribed)
	return out
}

// MockActivitySource is a mock implementation of ActivitySource.
type MockActivitySource struct {
	mu       sync.Mutex
	byWallet map[string]*polymarket.Activity
	errs     map[string]error
	calls    int
}

// NewMockActivitySource creates a new mock activity source.
func NewMockActivitySource() *MockActivitySource {
	return &MockActivitySource{
		byWallet: make(map[string]*polymarket.Activity),
		errs:     make(map[string]error),
	}
}

// SetActivity sets the activity returned for a wallet address.
func (m *MockActivitySource) SetActivity(wallet string, act *polymarket.Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byWallet[store.NormalizeAddress(wallet)] = act
}

// SetError sets an error to be returned for a wallet address.
func (m *MockActivitySource) SetError(wallet string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[store.NormalizeAddress(wallet)] = err
}

func (m *MockActivitySource) GetLatestActivity(ctx context.Context, wallet string) (*polymarket.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	key := store.NormalizeAddress(wallet)
	if err := m.errs[key]; err != nil {
		return nil, err
	}
	return m.byWallet[key], nil
}

// Calls returns how many times GetLatestActivity was invoked.
func (m *MockActivitySource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// sentMessage records one outbound message.
type sentMessage struct {
	ChatID   int64
	Text     string
	Markdown bool
}

// MockMessenger is a mock implementation of Messenger.
type MockMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[int64]error
}

// NewMockMessenger creates a new mock messenger.
func NewMockMessenger() *MockMessenger {
	return &MockMessenger{
		failFor: make(map[int64]error),
	}
}

// FailChat makes sends to chatID return err.
func (m *MockMessenger) FailChat(chatID int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[chatID] = err
}

func (m *MockMessenger) SendMessage(chatID int64, text string) error {
	return m.send(chatID, text, false)
}

func (m *MockMessenger) SendAlert(chatID int64, text string) error {
	return m.send(chatID, text, true)
}

func (m *MockMessenger) send(chatID int64, text string, markdown bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[chatID]; err != nil {
		return err
	}
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text, Markdown: markdown})
	return nil
}

// Sent returns every recorded message in send order.
func (m *MockMessenger) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// MockEmbedPoster is a mock implementation of EmbedPoster.
type MockEmbedPoster struct {
	mu      sync.Mutex
	enabled bool
	alerts  []discord.SignalAlert
}

// NewMockEmbedPoster creates a new mock embed poster.
func NewMockEmbedPoster(enabled bool) *MockEmbedPoster {
	return &MockEmbedPoster{enabled: enabled}
}

func (m *MockEmbedPoster) Enabled() bool {
	return m.enabled
}

func (m *MockEmbedPoster) SendSignalAlert(alert discord.SignalAlert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
}

// Alerts returns every posted embed alert in order.
func (m *MockEmbedPoster) Alerts() []discord.SignalAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]discord.SignalAlert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// MockSignalSink is a mock implementation of SignalSink.
type MockSignalSink struct {
	mu      sync.Mutex
	signals []Signal
}

func (m *MockSignalSink) BroadcastSignal(ctx context.Context, sig Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
}

// Signals returns every broadcast signal in order.
func (m *MockSignalSink) Signals() []Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Signal, len(m.signals))
	copy(out, m.signals)
	return out
}

// walletAlert records one wallet alert delivery.
type walletAlert struct {
	ChatID int64
	Text   string
}

// MockWalletAlertSink is a mock implementation of WalletAlertSink.
type MockWalletAlertSink struct {
	mu     sync.Mutex
	alerts []walletAlert
	err    error
}

// SetError makes SendWalletAlert return err.
func (m *MockWalletAlertSink) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockWalletAlertSink) SendWalletAlert(chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.alerts = append(m.alerts, walletAlert{ChatID: chatID, Text: text})
	return nil
}

// Alerts returns every delivered alert in order.
func (m *MockWalletAlertSink) Alerts() []walletAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]walletAlert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// MockScanner is a mock implementation of Scanner.
type MockScanner struct {
	mu      sync.Mutex
	summary string
	err     error
	calls   int
}

// SetResult sets what Scan returns.
func (m *MockScanner) SetResult(summary string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = summary
	m.err = err
}

func (m *MockScanner) Scan(ctx context.Context, chatID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.summary, m.err
}

// Calls returns how many times Scan was invoked.
func (m *MockScanner) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockStore is an in-memory store.Store with injectable failures. It
// mirrors the real backends' semantics: normalized addresses, the
// per-recipient wallet cap, and sentinel errors.
type MockStore struct {
	mu         sync.Mutex
	recipients []store.Recipient
	wallets    []store.WatchedWallet
	nextID     int

	registerErr   error
	recipientsErr error
	addErr        error
	removeErr     error
	listErr       error
	allErr        error
	updateErr     error
}

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) RegisterRecipient(ctx context.Context, chatID int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return m.registerErr
	}
	for i := range m.recipients {
		if m.recipients[i].ChatID == chatID {
			m.recipients[i].Username = username
			return nil
		}
	}
	m.recipients = append(m.recipients, store.Recipient{
		ChatID:    chatID,
		Username:  username,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *MockStore) Recipients(ctx context.Context) ([]store.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recipientsErr != nil {
		return nil, m.recipientsErr
	}
	out := make([]store.Recipient, len(m.recipients))
	copy(out, m.recipients)
	return out, nil
}

func (m *MockStore) AddWallet(ctx context.Context, chatID int64, address, name string) (*store.WatchedWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return nil, m.addErr
	}

	address = store.NormalizeAddress(address)
	count := 0
	for _, w := range m.wallets {
		if w.ChatID != chatID {
			continue
		}
		if w.Address == address {
			return nil, store.ErrWalletExists
		}
		count++
	}
	if count >= store.MaxWalletsPerRecipient {
		return nil, store.ErrWalletLimit
	}

	m.nextID++
	w := store.WatchedWallet{
		ID:      fmt.Sprintf("wallet-%d", m.nextID),
		ChatID:  chatID,
		Address: address,
		Name:    name,
		AddedAt: time.Now(),
	}
	m.wallets = append(m.wallets, w)
	return &w, nil
}

func (m *MockStore) RemoveWallet(ctx context.Context, chatID int64, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}

	address = store.NormalizeAddress(address)
	for i, w := range m.wallets {
		if w.ChatID == chatID && w.Address == address {
			m.wallets = append(m.wallets[:i], m.wallets[i+1:]...)
			return nil
		}
	}
	return store.ErrWalletNotFound
}

func (m *MockStore) WatchedWallets(ctx context.Context, chatID int64) ([]store.WatchedWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []store.WatchedWallet
	for _, w := range m.wallets {
		if w.ChatID == chatID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *MockStore) AllWallets(ctx context.Context) ([]store.WatchedWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allErr != nil {
		return nil, m.allErr
	}
	out := make([]store.WatchedWallet, len(m.wallets))
	copy(out, m.wallets)
	return out, nil
}

func (m *MockStore) UpdateFingerprint(ctx context.Context, walletID, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for i := range m.wallets {
		if m.wallets[i].ID == walletID {
			m.wallets[i].Fingerprint = fingerprint
			return nil
		}
	}
	return store.ErrWalletNotFound
}

func (m *MockStore) Close() error {
	return nil
}

// Fingerprint returns the stored fingerprint for a wallet record ID.
func (m *MockStore) Fingerprint(walletID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.ID == walletID {
			return w.Fingerprint
		}
	}
	return ""
}
