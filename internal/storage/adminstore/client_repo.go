// Package adminstore implements the central admin server's repositories
// (spec §4.9) over badgerhold, grounded on the same teacher connection
// pattern as internal/storage/badgerstore.
package adminstore

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
	"github.com/formflow/automation/internal/retry"
)

// ClientRepo implements interfaces.ClientRepo, keyed by MachineID.
type ClientRepo struct {
	db     *DB
	logger arbor.ILogger
}

func NewClientRepo(db *DB, logger arbor.ILogger) *ClientRepo {
	return &ClientRepo{db: db, logger: logger}
}

func (r *ClientRepo) Upsert(ctx context.Context, c *models.Client) error {
	if c.MachineID == "" {
		return fmt.Errorf("client machine id is required")
	}
	return retry.OnBusy(func() error {
		return r.db.Store().Upsert(c.MachineID, c)
	})
}

func (r *ClientRepo) Get(ctx context.Context, machineID string) (*models.Client, error) {
	var c models.Client
	if err := r.db.Store().Get(machineID, &c); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

func (r *ClientRepo) List(ctx context.Context) ([]*models.Client, error) {
	var clients []models.Client
	if err := r.db.Store().Find(&clients, nil); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	out := make([]*models.Client, len(clients))
	for i := range clients {
		out[i] = &clients[i]
	}
	return out, nil
}
