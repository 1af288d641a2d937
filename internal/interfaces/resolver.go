package interfaces

import (
	"context"

	"github.com/formflow/automation/internal/models"
)

// FieldPlan is the Field Resolver's output: the field plan plus the layer
// that produced it (spec §4.7, C8).
type FieldPlan struct {
	Entries []models.FieldPlanEntry
	Source  models.PlanSource
}

// FieldResolver orchestrates the cached -> AI -> pattern layering and
// returns the canonical field plan for one job (spec §4.7, C8).
type FieldResolver interface {
	Resolve(ctx context.Context, domain string, session BrowserSession, profileKeys []string) (*FieldPlan, error)
}

// DomainMappingStore is the Domain Mapping Store's learning contract
// (spec §4.7, C7): at-most-one writer per domain, optimistic-retry merge.
type DomainMappingStore interface {
	// Get returns the current mapping for domain, or nil if none exists.
	Get(ctx context.Context, domain string) (*models.DomainMapping, error)
	// Learn merges newPlan into the current mapping for domain under a
	// per-domain logical lock, retrying once on a concurrent version bump
	// (spec §4.7 "Learning").
	Learn(ctx context.Context, domain, firstURL string, newPlan []models.FieldPlanEntry) (*models.DomainMapping, error)
}
