package app

import (
	"context"
	"sync"
	"time"

	"github.com/Kalifa21/the-watcher/clients/discord"
	"github.com/Kalifa21/the-watcher/internal/store"
	"go.uber.org/zap"
)

// Messenger is the outbound messaging surface the dispatcher uses.
// Satisfied by the telegram client.
type Messenger interface {
	SendMessage(chatID int64, text string) error
	SendAlert(chatID int64, text string) error
}

// EmbedPoster mirrors signals to an optional side channel. Satisfied by
// the discord client.
type EmbedPoster interface {
	Enabled() bool
	SendSignalAlert(alert discord.SignalAlert)
}

// RecipientDirectory lists the chats signals broadcast to. Satisfied by
// the store.
type RecipientDirectory interface {
	Recipients(ctx context.Context) ([]store.Recipient, error)
}

// DispatcherStats holds delivery counters for the stats endpoint.
type DispatcherStats struct {
	SignalsSent  int       `json:"signals_sent"`
	WalletAlerts int       `json:"wallet_alerts"`
	SendFailures int       `json:"send_failures"`
	LastSentAt   time.Time `json:"last_sent_at"`
}

// Dispatcher formats each signal once and fans it out to every
// registered recipient, mirroring to Discord when configured.
// Wallet-change alerts go only to the wallet's owning recipient.
type Dispatcher struct {
	logger    *zap.Logger
	messenger Messenger
	embeds    EmbedPoster
	directory RecipientDirectory

	mu    sync.Mutex
	stats DispatcherStats
}

// NewDispatcher creates a dispatcher. embeds may be nil when no Discord
// channel is configured.
func NewDispatcher(logger *zap.Logger, messenger Messenger, embeds EmbedPoster, directory RecipientDirectory) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger:    logger,
		messenger: messenger,
		embeds:    embeds,
		directory: directory,
	}
}

// BroadcastSignal sends sig to every recipient. A per-recipient send
// failure is logged and does not stop the remaining sends.
func (d *Dispatcher) BroadcastSignal(ctx context.Context, sig Signal) {
	text := FormatSignal(sig)

	recipients, err := d.directory.Recipients(ctx)
	if err != nil {
		d.logger.Error("failed to list recipients", zap.Error(err))
	}

	delivered := 0
	for _, r := range recipients {
		if err := d.messenger.SendAlert(r.ChatID, text); err != nil {
			d.logger.Error("failed to send signal alert",
				zap.Int64("chatID", r.ChatID),
				zap.String("kind", string(sig.Kind)),
				zap.Error(err),
			)
			d.countFailure()
			continue
		}
		delivered++
		d.countSignal()
	}

	if d.embeds != nil && d.embeds.Enabled() {
		d.embeds.SendSignalAlert(signalEmbed(sig))
	}

	d.logger.Info("signal dispatched",
		zap.String("kind", string(sig.Kind)),
		zap.String("market", shortID(sig.MarketID)),
		zap.Int("recipients", delivered),
	)
}

// SendWalletAlert delivers a wallet-change alert to the owning
// recipient only.
func (d *Dispatcher) SendWalletAlert(chatID int64, text string) error {
	if err := d.messenger.SendAlert(chatID, text); err != nil {
		d.countFailure()
		return err
	}
	d.countWalletAlert()
	return nil
}

// Stats returns a copy of the delivery counters.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) countSignal() {
	d.mu.Lock()
	d.stats.SignalsSent++
	d.stats.LastSentAt = time.Now()
	d.mu.Unlock()
}

func (d *Dispatcher) countWalletAlert() {
	d.mu.Lock()
	d.stats.WalletAlerts++
	d.stats.LastSentAt = time.Now()
	d.mu.Unlock()
}

func (d *Dispatcher) countFailure() {
	d.mu.Lock()
	d.stats.SendFailures++
	d.mu.Unlock()
}

// signalEmbed maps a signal onto the Discord embed payload.
func signalEmbed(sig Signal) discord.SignalAlert {
	return discord.SignalAlert{
		Kind:         string(sig.Kind),
		Title:        signalHeading(sig.Kind),
		MarketTitle:  nz(sig.MarketName, sig.MarketID),
		MarketURL:    MarketURL(sig.MarketSlug, sig.MarketID),
		MarketImage:  sig.MarketIcon,
		Outcome:      sig.Outcome,
		BuyVolume:    sig.BuyVolume,
		SellVolume:   sig.SellVolume,
		RatioDisplay: FormatRatio(sig.Ratio),
		UniqueBuyers: sig.UniqueBuyers,
		Timestamp:    sig.Timestamp,
	}
}
