package adminstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/models"
	"github.com/formflow/automation/internal/retry"
)

// CommandResultRepo implements interfaces.CommandResultRepo, keyed by a
// generated id since a client may report results for several commands.
type CommandResultRepo struct {
	db     *DB
	logger arbor.ILogger
}

func NewCommandResultRepo(db *DB, logger arbor.ILogger) *CommandResultRepo {
	return &CommandResultRepo{db: db, logger: logger}
}

func (r *CommandResultRepo) Save(ctx context.Context, result *models.CommandResult) error {
	if result.CommandID == "" {
		return fmt.Errorf("command result requires a command id")
	}
	key := result.CommandID + "_" + uuid.New().String()
	return retry.OnBusy(func() error {
		return r.db.Store().Insert(key, result)
	})
}

func (r *CommandResultRepo) List(ctx context.Context) ([]*models.CommandResult, error) {
	var results []models.CommandResult
	if err := r.db.Store().Find(&results, nil); err != nil {
		return nil, fmt.Errorf("list command results: %w", err)
	}
	out := make([]*models.CommandResult, len(results))
	for i := range results {
		out[i] = &results[i]
	}
	return out, nil
}
