package badgerstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/formflow/automation/internal/models"
	"github.com/formflow/automation/internal/retry"
)

// HistoryRepo implements interfaces.HistoryRepo: append-only, idempotent
// on job id (spec §8 P3).
type HistoryRepo struct {
	db     *DB
	logger arbor.ILogger
}

func NewHistoryRepo(db *DB, logger arbor.ILogger) *HistoryRepo {
	return &HistoryRepo{db: db, logger: logger}
}

func (r *HistoryRepo) Append(ctx context.Context, entry models.FillHistoryEntry) error {
	return retry.OnBusy(func() error {
		var existing models.FillHistoryEntry
		err := r.db.Store().Get(entry.JobID, &existing)
		if err == nil {
			return nil // already recorded for this job id
		}
		if err != badgerhold.ErrNotFound {
			return err
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now()
		}
		return r.db.Store().Insert(entry.JobID, &entry)
	})
}
