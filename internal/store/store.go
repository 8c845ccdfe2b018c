// Package store persists alert recipients and their wallet watchlists
// behind one capability interface with swappable backends: a local JSON
// file, SQLite, and a GitHub-Gist-backed JSON document.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxWalletsPerRecipient caps how many wallets one recipient can watch.
const MaxWalletsPerRecipient = 5

// Sentinel errors callers branch on.
var (
	ErrWalletLimit    = errors.New("wallet limit reached")
	ErrWalletExists   = errors.New("wallet already watched")
	ErrWalletNotFound = errors.New("wallet not watched")
)

// Recipient is a chat the dispatcher broadcasts signals to and the
// owner of a watchlist. Created on first interaction with the bot.
type Recipient struct {
	ChatID    int64     `json:"chat_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// WatchedWallet is one address on a recipient's watchlist. Fingerprint
// holds the last-observed-trade identifier, empty until the first sync.
type WatchedWallet struct {
	ID          string    `json:"id"`
	ChatID      int64     `json:"chat_id"`
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	AddedAt     time.Time `json:"added_at"`
}

// Store is the persistence capability the bot depends on.
type Store interface {
	// RegisterRecipient records a chat as a broadcast recipient.
	// Idempotent; registering an existing chat updates its username.
	RegisterRecipient(ctx context.Context, chatID int64, username string) error

	// Recipients lists every registered recipient.
	Recipients(ctx context.Context) ([]Recipient, error)

	// AddWallet puts an address on a recipient's watchlist. Returns
	// ErrWalletLimit at capacity and ErrWalletExists on duplicates.
	AddWallet(ctx context.Context, chatID int64, address, name string) (*WatchedWallet, error)

	// RemoveWallet deletes an address from a recipient's watchlist.
	// Returns ErrWalletNotFound when the address is not watched.
	RemoveWallet(ctx context.Context, chatID int64, address string) error

	// WatchedWallets lists one recipient's watchlist.
	WatchedWallets(ctx context.Context, chatID int64) ([]WatchedWallet, error)

	// AllWallets lists every watched wallet across recipients.
	AllWallets(ctx context.Context) ([]WatchedWallet, error)

	// UpdateFingerprint stores the last-observed-trade fingerprint for
	// a wallet by its record ID.
	UpdateFingerprint(ctx context.Context, walletID, fingerprint string) error

	Close() error
}

// NormalizeAddress canonicalizes a wallet address for comparison.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
