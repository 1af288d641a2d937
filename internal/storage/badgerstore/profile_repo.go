package badgerstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
	"github.com/formflow/automation/internal/retry"
)

// ProfileRepo implements interfaces.ProfileRepo over badgerhold. Grounded
// on the teacher's DocumentStorage in
// internal/storage/badger/document_storage.go: same Upsert/Get/Delete
// shape against a single badgerhold store.
type ProfileRepo struct {
	db     *DB
	logger arbor.ILogger
}

func NewProfileRepo(db *DB, logger arbor.ILogger) *ProfileRepo {
	return &ProfileRepo{db: db, logger: logger}
}

func (r *ProfileRepo) Get(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.Store().Get(id, &p); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

func (r *ProfileRepo) List(ctx context.Context) ([]*models.Profile, error) {
	var profiles []models.Profile
	if err := r.db.Store().Find(&profiles, nil); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]*models.Profile, len(profiles))
	for i := range profiles {
		out[i] = &profiles[i]
	}
	return out, nil
}

func (r *ProfileRepo) Create(ctx context.Context, p *models.Profile) error {
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return retry.OnBusy(func() error {
		return r.db.Store().Upsert(p.ID, p)
	})
}

func (r *ProfileRepo) Update(ctx context.Context, p *models.Profile) error {
	p.UpdatedAt = time.Now()
	return retry.OnBusy(func() error {
		return r.db.Store().Upsert(p.ID, p)
	})
}

func (r *ProfileRepo) Delete(ctx context.Context, id string) error {
	err := r.db.Store().Delete(id, &models.Profile{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
