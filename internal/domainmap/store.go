// Package domainmap implements the Domain Mapping Store (C7, spec §4.7):
// at-most-one writer per domain, learning by union-merge of the newly
// observed plan into whatever is already stored.
package domainmap

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

// Store implements interfaces.DomainMappingStore over a DomainMappingRepo,
// serializing Learn calls per domain with a keyed mutex. Grounded on the
// per-domain lock map in internal/services/crawler/rate_limiter.go.
type Store struct {
	repo interfaces.DomainMappingRepo

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	logger arbor.ILogger
}

func New(repo interfaces.DomainMappingRepo, logger arbor.ILogger) *Store {
	return &Store{
		repo:   repo,
		locks:  make(map[string]*sync.Mutex),
		logger: logger,
	}
}

func (s *Store) domainLock(domain string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[domain]
	if !ok {
		l = &sync.Mutex{}
		s.locks[domain] = l
	}
	return l
}

func (s *Store) Get(ctx context.Context, domain string) (*models.DomainMapping, error) {
	m, err := s.repo.Get(ctx, domain)
	if err == interfaces.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get domain mapping: %w", err)
	}
	return m, nil
}

// Learn merges newPlan into the current mapping for domain under the
// domain's logical lock. The lock makes read-merge-write atomic for every
// writer inside this process; Put's own version bump additionally protects
// against a second process writing the same domain concurrently, so Learn
// retries the merge once if the version it wrote does not match what it
// expected (spec §4.7 "Learning").
func (s *Store) Learn(ctx context.Context, domain, firstURL string, newPlan []models.FieldPlanEntry) (*models.DomainMapping, error) {
	lock := s.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	var result *models.DomainMapping
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		result, err = s.learnOnce(ctx, domain, firstURL, newPlan)
		if err == nil {
			return result, nil
		}
		if !isVersionConflict(err) {
			return nil, err
		}
		s.logger.Warn().Str("domain", domain).Int("attempt", attempt+1).Msg("domain mapping version conflict, retrying learn")
	}
	return nil, err
}

func (s *Store) learnOnce(ctx context.Context, domain, firstURL string, newPlan []models.FieldPlanEntry) (*models.DomainMapping, error) {
	current, err := s.repo.Get(ctx, domain)
	expectedVersion := 0
	merged := newPlan
	if err == nil {
		expectedVersion = current.Version
		merged = current.Merge(newPlan)
	} else if err != interfaces.ErrNotFound {
		return nil, fmt.Errorf("get domain mapping: %w", err)
	}

	newVersion, err := s.repo.Put(ctx, domain, merged, firstURL)
	if err != nil {
		return nil, fmt.Errorf("put domain mapping: %w", err)
	}
	if newVersion != expectedVersion+1 {
		return nil, versionConflictError{domain: domain}
	}

	return &models.DomainMapping{
		Domain:   domain,
		Plan:     merged,
		Version:  newVersion,
		FirstURL: firstURL,
	}, nil
}

type versionConflictError struct{ domain string }

func (e versionConflictError) Error() string {
	return fmt.Sprintf("domain mapping version conflict for %q", e.domain)
}

func isVersionConflict(err error) bool {
	_, ok := err.(versionConflictError)
	return ok
}
