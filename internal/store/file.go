package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// FileStore persists the watchlist document to a local JSON file,
// loading it at construction and rewriting it after every mutation.
type FileStore struct {
	docStore
	logger *zap.Logger
	path   string
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens (or creates) the JSON store at path.
func NewFileStore(logger *zap.Logger, path string) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fs := &FileStore{logger: logger, path: path}
	fs.persist = fs.write

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fs, nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fs.doc); err != nil {
			return nil, fmt.Errorf("parse store file: %w", err)
		}
	}

	logger.Info("loaded watchlist store",
		zap.String("path", path),
		zap.Int("recipients", len(fs.doc.Recipients)),
		zap.Int("wallets", len(fs.doc.Wallets)),
	)
	return fs, nil
}

func (fs *FileStore) write(ctx context.Context, doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	if err := os.WriteFile(fs.path, data, 0o644); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	return nil
}

func (fs *FileStore) Close() error {
	return nil
}
