package interfaces

import (
	"context"
	"time"

	"github.com/formflow/automation/internal/models"
)

// ProfileRepo provides typed access to profiles (spec §4.6, C1). All
// operations are safe for concurrent use.
type ProfileRepo interface {
	Get(ctx context.Context, id string) (*models.Profile, error) // returns ErrNotFound
	List(ctx context.Context) ([]*models.Profile, error)
	Create(ctx context.Context, p *models.Profile) error
	Update(ctx context.Context, p *models.Profile) error
	Delete(ctx context.Context, id string) error
}

// SiteRepo provides typed access to saved sites (spec §4.6, C1).
type SiteRepo interface {
	Get(ctx context.Context, id string) (*models.Site, error)
	List(ctx context.Context) ([]*models.Site, error)
	ListEnabled(ctx context.Context) ([]*models.Site, error)
	Create(ctx context.Context, s *models.Site) error
	Update(ctx context.Context, s *models.Site) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status models.SiteStatus, fieldsFilled int, lastRun time.Time) error
	UpdateCachedPlan(ctx context.Context, id string, plan []models.FieldPlanEntry) error
}

// DomainMappingRepo provides typed access to learned field plans, keyed by
// registrable domain (spec §4.6, §4.7, C1, C7).
type DomainMappingRepo interface {
	Get(ctx context.Context, domain string) (*models.DomainMapping, error) // returns ErrNotFound
	// Put atomically replaces the mapping for domain and returns the new
	// version. Callers serialize writes per domain themselves (see
	// internal/domainmap); Put does not serialize on their behalf.
	Put(ctx context.Context, domain string, plan []models.FieldPlanEntry, firstURL string) (newVersion int, err error)
	Delete(ctx context.Context, domain string) error
}

// HistoryRepo provides append-only access to fill history, idempotent on
// job id (spec §4.6, §8 P3, C1).
type HistoryRepo interface {
	Append(ctx context.Context, entry models.FillHistoryEntry) error
}

// ErrNotFound is returned by repository Get methods when the id/key is
// absent.
var ErrNotFound = repoNotFoundError{}

type repoNotFoundError struct{}

func (repoNotFoundError) Error() string { return "not found" }
