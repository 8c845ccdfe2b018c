package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// document is the serialized watchlist shape shared by the file and
// gist backends.
type document struct {
	Version    int             `json:"version"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Recipients []Recipient     `json:"recipients"`
	Wallets    []WatchedWallet `json:"wallets"`
}

// docStore implements the Store operations on an in-memory document.
// persist runs after every mutation while the lock is held, so backends
// always see a consistent document.
type docStore struct {
	mu      sync.Mutex
	doc     document
	persist func(ctx context.Context, doc *document) error
}

func (s *docStore) save(ctx context.Context) error {
	s.doc.Version = 1
	s.doc.UpdatedAt = time.Now().UTC()
	return s.persist(ctx, &s.doc)
}

func (s *docStore) RegisterRecipient(ctx context.Context, chatID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Recipients {
		if s.doc.Recipients[i].ChatID != chatID {
			continue
		}
		if s.doc.Recipients[i].Username == username {
			return nil
		}
		s.doc.Recipients[i].Username = username
		return s.save(ctx)
	}

	s.doc.Recipients = append(s.doc.Recipients, Recipient{
		ChatID:    chatID,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	})
	return s.save(ctx)
}

func (s *docStore) Recipients(ctx context.Context) ([]Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Recipient, len(s.doc.Recipients))
	copy(out, s.doc.Recipients)
	return out, nil
}

func (s *docStore) AddWallet(ctx context.Context, chatID int64, address, name string) (*WatchedWallet, error) {
	address = NormalizeAddress(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, w := range s.doc.Wallets {
		if w.ChatID != chatID {
			continue
		}
		if w.Address == address {
			return nil, ErrWalletExists
		}
		count++
	}
	if count >= MaxWalletsPerRecipient {
		return nil, ErrWalletLimit
	}

	wallet := WatchedWallet{
		ID:      uuid.NewString(),
		ChatID:  chatID,
		Address: address,
		Name:    name,
		AddedAt: time.Now().UTC(),
	}
	s.doc.Wallets = append(s.doc.Wallets, wallet)

	if err := s.save(ctx); err != nil {
		s.doc.Wallets = s.doc.Wallets[:len(s.doc.Wallets)-1]
		return nil, err
	}
	return &wallet, nil
}

func (s *docStore) RemoveWallet(ctx context.Context, chatID int64, address string) error {
	address = NormalizeAddress(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, w := range s.doc.Wallets {
		if w.ChatID == chatID && w.Address == address {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrWalletNotFound
	}

	removed := s.doc.Wallets[idx]
	s.doc.Wallets = append(s.doc.Wallets[:idx], s.doc.Wallets[idx+1:]...)

	if err := s.save(ctx); err != nil {
		s.doc.Wallets = append(s.doc.Wallets, removed)
		return err
	}
	return nil
}

func (s *docStore) WatchedWallets(ctx context.Context, chatID int64) ([]WatchedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []WatchedWallet
	for _, w := range s.doc.Wallets {
		if w.ChatID == chatID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *docStore) AllWallets(ctx context.Context) ([]WatchedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WatchedWallet, len(s.doc.Wallets))
	copy(out, s.doc.Wallets)
	return out, nil
}

func (s *docStore) UpdateFingerprint(ctx context.Context, walletID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Wallets {
		if s.doc.Wallets[i].ID != walletID {
			continue
		}
		prev := s.doc.Wallets[i].Fingerprint
		s.doc.Wallets[i].Fingerprint = fingerprint
		if err := s.save(ctx); err != nil {
			s.doc.Wallets[i].Fingerprint = prev
			return err
		}
		return nil
	}
	return ErrWalletNotFound
}
