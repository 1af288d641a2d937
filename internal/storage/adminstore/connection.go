package adminstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/formflow/automation/internal/common"
)

// DB wraps a badgerhold store for the admin server. Grounded on
// internal/storage/badgerstore.DB, which is in turn grounded on the
// teacher's BadgerDB in internal/storage/badger/connection.go.
type DB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

func Open(cfg common.BadgerConfig, logger arbor.ILogger) (*DB, error) {
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

	logger.Debug().Str("path", cfg.Path).Msg("admin database initialized")
	return &DB{store: store, logger: logger}, nil
}

func (d *DB) Store() *badgerhold.Store {
	return d.store
}

func (d *DB) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
