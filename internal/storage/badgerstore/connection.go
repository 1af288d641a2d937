// Package badgerstore implements the node-local repositories (C1, spec
// §4.6) on top of badgerhold, grounded on the teacher's
// internal/storage/badger package.
package badgerstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/formflow/automation/internal/common"
)

// DB wraps a badgerhold store. Grounded on the teacher's BadgerDB in
// internal/storage/badger/connection.go.
type DB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// Open creates (or reopens) the badgerhold database at cfg.Path, honoring
// ResetOnStartup the same way the teacher's connection.go does.
func Open(cfg common.BadgerConfig, logger arbor.ILogger) (*DB, error) {
	if cfg.ResetOnStartup {
		if _, err := os.Stat(cfg.Path); err == nil {
			logger.Debug().Str("path", cfg.Path).Msg("deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(cfg.Path); err != nil {
				logger.Warn().Err(err).Str("path", cfg.Path).Msg("failed to delete database directory")
			}
		}
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = cfg.Path
	options.ValueDir = cfg.Path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger.Debug().Str("path", cfg.Path).Msg("badger database initialized")
	return &DB{store: store, logger: logger}, nil
}

// Store returns the underlying badgerhold store.
func (d *DB) Store() *badgerhold.Store {
	return d.store
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
