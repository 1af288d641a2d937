package adminstore

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/formflow/automation/internal/models"
	"github.com/formflow/automation/internal/retry"
)

// CommandRepo implements interfaces.CommandRepo: commands are keyed by
// ID and queued per client id, deleted once dispatched so ListPending
// naturally reflects at-most-once delivery (spec §8 P5).
type CommandRepo struct {
	db     *DB
	logger arbor.ILogger
}

func NewCommandRepo(db *DB, logger arbor.ILogger) *CommandRepo {
	return &CommandRepo{db: db, logger: logger}
}

func (r *CommandRepo) Enqueue(ctx context.Context, cmd *models.Command) error {
	if cmd.ID == "" {
		return fmt.Errorf("command id is required")
	}
	return retry.OnBusy(func() error {
		return r.db.Store().Insert(cmd.ID, cmd)
	})
}

func (r *CommandRepo) ListPending(ctx context.Context, clientID string) ([]*models.Command, error) {
	var cmds []models.Command
	if err := r.db.Store().Find(&cmds, badgerhold.Where("ClientID").Eq(clientID)); err != nil {
		return nil, fmt.Errorf("list pending commands: %w", err)
	}
	out := make([]*models.Command, len(cmds))
	for i := range cmds {
		out[i] = &cmds[i]
	}
	return out, nil
}

func (r *CommandRepo) Delete(ctx context.Context, commandID string) error {
	err := r.db.Store().Delete(commandID, &models.Command{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("delete command: %w", err)
	}
	return nil
}
