package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS recipients (
	chat_id    INTEGER PRIMARY KEY,
	username   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS wallets (
	id          TEXT PRIMARY KEY,
	chat_id     INTEGER NOT NULL,
	address     TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	added_at    INTEGER NOT NULL,
	UNIQUE (chat_id, address)
);

CREATE INDEX IF NOT EXISTS idx_wallets_chat ON wallets (chat_id);
`

// SQLiteStore persists the watchlist in a local SQLite database.
type SQLiteStore struct {
	logger *zap.Logger
	db     *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and applies
// the schema.
func NewSQLiteStore(logger *zap.Logger, path string) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite is single-writer; one connection avoids SQLITE_BUSY under
	// the two poll loops.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("opened sqlite watchlist store", zap.String("path", path))
	return &SQLiteStore{logger: logger, db: db}, nil
}

func (s *SQLiteStore) RegisterRecipient(ctx context.Context, chatID int64, username string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recipients (chat_id, username, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (chat_id) DO UPDATE SET username = excluded.username`,
		chatID, username, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("register recipient: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recipients(ctx context.Context) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, username, created_at FROM recipients ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		var createdAt int64
		if err := rows.Scan(&r.ChatID, &r.Username, &createdAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddWallet(ctx context.Context, chatID int64, address, name string) (*WatchedWallet, error) {
	address = NormalizeAddress(address)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM wallets WHERE chat_id = ? AND address = ?`,
		chatID, address,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check wallet: %w", err)
	}
	if exists > 0 {
		return nil, ErrWalletExists
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM wallets WHERE chat_id = ?`, chatID,
	).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count wallets: %w", err)
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
	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallets (id, chat_id, address, name, fingerprint, added_at)
		 VALUES (?, ?, ?, ?, '', ?)`,
		wallet.ID, wallet.ChatID, wallet.Address, wallet.Name, wallet.AddedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &wallet, nil
}

func (s *SQLiteStore) RemoveWallet(ctx context.Context, chatID int64, address string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM wallets WHERE chat_id = ? AND address = ?`,
		chatID, NormalizeAddress(address),
	)
	if err != nil {
		return fmt.Errorf("remove wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (s *SQLiteStore) WatchedWallets(ctx context.Context, chatID int64) ([]WatchedWallet, error) {
	return s.queryWallets(ctx,
		`SELECT id, chat_id, address, name, fingerprint, added_at
		 FROM wallets WHERE chat_id = ? ORDER BY added_at`, chatID)
}

func (s *SQLiteStore) AllWallets(ctx context.Context) ([]WatchedWallet, error) {
	return s.queryWallets(ctx,
		`SELECT id, chat_id, address, name, fingerprint, added_at
		 FROM wallets ORDER BY added_at`)
}

func (s *SQLiteStore) queryWallets(ctx context.Context, query string, args ...any) ([]WatchedWallet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var out []WatchedWallet
	for rows.Next() {
		var w WatchedWallet
		var addedAt int64
		if err := rows.Scan(&w.ID, &w.ChatID, &w.Address, &w.Name, &w.Fingerprint, &addedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		w.AddedAt = time.Unix(addedAt, 0).UTC()
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateFingerprint(ctx context.Context, walletID, fingerprint string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE wallets SET fingerprint = ? WHERE id = ?`,
		fingerprint, walletID,
	)
	if err != nil {
		return fmt.Errorf("update fingerprint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
