// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/search"
	"github.com/pdiddy/research-agent/internal/store"
)

// openStore builds the paper store from the configuration. The index is
// attached when configured or when withIndex forces it. The returned
// function releases the index and must be called.
func openStore(withIndex bool) (*store.Store, func(), error) {
	opts := []store.Option{store.WithLogger(logger)}
	release := func() {}

	if cfg.Store.Index || withIndex {
		idx, err := store.OpenIndex(cfg.Store.PapersDir)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, store.WithIndex(idx))
		release = func() {
			if err := idx.Close(); err != nil {
				logger.Warn("closing paper index", zap.Error(err))
			}
		}
	}

	backend := search.NewArxivBackend(cfg.Search, logger)
	return store.New(cfg.Store.PapersDir, backend, opts...), release, nil
}
