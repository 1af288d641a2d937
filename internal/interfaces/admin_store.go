package interfaces

import (
	"context"

	"github.com/formflow/automation/internal/models"
)

// ClientRepo is the admin server's store of registered nodes (spec §3, §4.9).
type ClientRepo interface {
	Upsert(ctx context.Context, c *models.Client) error
	Get(ctx context.Context, machineID string) (*models.Client, error)
	List(ctx context.Context) ([]*models.Client, error)
}

// CommandRepo queues commands for a client and tracks at-most-once dispatch
// (spec §3, §4.9, §8 P5).
type CommandRepo interface {
	Enqueue(ctx context.Context, cmd *models.Command) error
	ListPending(ctx context.Context, clientID string) ([]*models.Command, error)
	Delete(ctx context.Context, commandID string) error
}

// CommandResultRepo records reported command results (spec §3, §4.9).
type CommandResultRepo interface {
	Save(ctx context.Context, result *models.CommandResult) error
	List(ctx context.Context) ([]*models.CommandResult, error)
}
