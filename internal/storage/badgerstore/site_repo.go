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

// SiteRepo implements interfaces.SiteRepo over badgerhold.
type SiteRepo struct {
	db     *DB
	logger arbor.ILogger
}

func NewSiteRepo(db *DB, logger arbor.ILogger) *SiteRepo {
	return &SiteRepo{db: db, logger: logger}
}

func (r *SiteRepo) Get(ctx context.Context, id string) (*models.Site, error) {
	var s models.Site
	if err := r.db.Store().Get(id, &s); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("get site: %w", err)
	}
	return &s, nil
}

func (r *SiteRepo) List(ctx context.Context) ([]*models.Site, error) {
	var sites []models.Site
	if err := r.db.Store().Find(&sites, nil); err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	out := make([]*models.Site, len(sites))
	for i := range sites {
		out[i] = &sites[i]
	}
	return out, nil
}

func (r *SiteRepo) ListEnabled(ctx context.Context) ([]*models.Site, error) {
	var sites []models.Site
	if err := r.db.Store().Find(&sites, badgerhold.Where("Enabled").Eq(true)); err != nil {
		return nil, fmt.Errorf("list enabled sites: %w", err)
	}
	out := make([]*models.Site, len(sites))
	for i := range sites {
		out[i] = &sites[i]
	}
	return out, nil
}

func (r *SiteRepo) Create(ctx context.Context, s *models.Site) error {
	if s.ID == "" {
		return fmt.Errorf("site id is required")
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return retry.OnBusy(func() error {
		return r.db.Store().Upsert(s.ID, s)
	})
}

func (r *SiteRepo) Update(ctx context.Context, s *models.Site) error {
	s.UpdatedAt = time.Now()
	return retry.OnBusy(func() error {
		return r.db.Store().Upsert(s.ID, s)
	})
}

func (r *SiteRepo) Delete(ctx context.Context, id string) error {
	err := r.db.Store().Delete(id, &models.Site{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("delete site: %w", err)
	}
	return nil
}

func (r *SiteRepo) UpdateStatus(ctx context.Context, id string, status models.SiteStatus, fieldsFilled int, lastRun time.Time) error {
	return retry.OnBusy(func() error {
		var s models.Site
		if err := r.db.Store().Get(id, &s); err != nil {
			if err == badgerhold.ErrNotFound {
				return interfaces.ErrNotFound
			}
			return err
		}
		s.LastStatus = status
		s.LastFieldsFilled = fieldsFilled
		s.LastRunAt = &lastRun
		s.UpdatedAt = time.Now()
		return r.db.Store().Upsert(id, &s)
	})
}

func (r *SiteRepo) UpdateCachedPlan(ctx context.Context, id string, plan []models.FieldPlanEntry) error {
	return retry.OnBusy(func() error {
		var s models.Site
		if err := r.db.Store().Get(id, &s); err != nil {
			if err == badgerhold.ErrNotFound {
				return interfaces.ErrNotFound
			}
			return err
		}
		s.CachedPlan = plan
		s.UpdatedAt = time.Now()
		return r.db.Store().Upsert(id, &s)
	})
}
