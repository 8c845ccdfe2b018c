package store

import (
	"context"
	"fmt"

	"github.com/Kalifa21/the-watcher/clients/gist"
	"go.uber.org/zap"
)

// GistStore keeps the watchlist document in a GitHub gist, mirroring
// the file backend's JSON shape. Every mutation uploads the whole
// document.
type GistStore struct {
	docStore
	logger   *zap.Logger
	storage  gist.Storage
	fileName string
}

var _ Store = (*GistStore)(nil)

// NewGistStore loads the watchlist document from gist storage. A
// missing or unreadable document is logged and treated as an empty
// watchlist.
func NewGistStore(ctx context.Context, logger *zap.Logger, storage gist.Storage, fileName string) (*GistStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !storage.IsEnabled() {
		return nil, fmt.Errorf("gist storage not configured")
	}
	if fileName == "" {
		fileName = "watchlists.json"
	}

	gs := &GistStore{logger: logger, storage: storage, fileName: fileName}
	gs.persist = gs.upload

	if err := storage.LoadJSON(ctx, fileName, &gs.doc); err != nil {
		logger.Warn("failed to load watchlists from gist, starting empty",
			zap.String("fileName", fileName),
			zap.Error(err),
		)
	} else {
		logger.Info("loaded watchlist store from gist",
			zap.String("fileName", fileName),
			zap.Int("recipients", len(gs.doc.Recipients)),
			zap.Int("wallets", len(gs.doc.Wallets)),
		)
	}

	return gs, nil
}

func (gs *GistStore) upload(ctx context.Context, doc *document) error {
	if err := gs.storage.SaveJSON(ctx, gs.fileName, doc); err != nil {
		return fmt.Errorf("save watchlists to gist: %w", err)
	}
	return nil
}

func (gs *GistStore) Close() error {
	return nil
}
