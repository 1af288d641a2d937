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

// DomainMappingRepo implements interfaces.DomainMappingRepo over
// badgerhold, keyed by lowercased registrable domain. Put replaces the
// mapping atomically and bumps the version counter; it does not itself
// serialize concurrent writers for the same domain — that is
// internal/domainmap's job (spec §4.7).
type DomainMappingRepo struct {
	db     *DB
	logger arbor.ILogger
}

func NewDomainMappingRepo(db *DB, logger arbor.ILogger) *DomainMappingRepo {
	return &DomainMappingRepo{db: db, logger: logger}
}

func (r *DomainMappingRepo) Get(ctx context.Context, domain string) (*models.DomainMapping, error) {
	var m models.DomainMapping
	if err := r.db.Store().Get(domain, &m); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("get domain mapping: %w", err)
	}
	return &m, nil
}

func (r *DomainMappingRepo) Put(ctx context.Context, domain string, plan []models.FieldPlanEntry, firstURL string) (int, error) {
	var newVersion int
	err := retry.OnBusy(func() error {
		var existing models.DomainMapping
		version := 1
		first := firstURL
		if err := r.db.Store().Get(domain, &existing); err == nil {
			version = existing.Version + 1
			if existing.FirstURL != "" {
				first = existing.FirstURL
			}
		} else if err != badgerhold.ErrNotFound {
			return err
		}

		mapping := models.DomainMapping{
			Domain:    domain,
			Plan:      plan,
			Version:   version,
			FirstURL:  first,
			UpdatedAt: time.Now(),
		}
		if err := r.db.Store().Upsert(domain, &mapping); err != nil {
			return err
		}
		newVersion = version
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("put domain mapping: %w", err)
	}
	return newVersion, nil
}

func (r *DomainMappingRepo) Delete(ctx context.Context, domain string) error {
	err := r.db.Store().Delete(domain, &models.DomainMapping{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("delete domain mapping: %w", err)
	}
	return nil
}
