package domainmap

import (
	"context"
	"sync"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

type fakeRepo struct {
	mu       sync.Mutex
	mappings map[string]*models.DomainMapping
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{mappings: make(map[string]*models.DomainMapping)}
}

func (f *fakeRepo) Get(ctx context.Context, domain string) (*models.DomainMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mappings[domain]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeRepo) Put(ctx context.Context, domain string, plan []models.FieldPlanEntry, firstURL string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	version := 1
	first := firstURL
	if existing, ok := f.mappings[domain]; ok {
		version = existing.Version + 1
		if existing.FirstURL != "" {
			first = existing.FirstURL
		}
	}
	f.mappings[domain] = &models.DomainMapping{Domain: domain, Plan: plan, Version: version, FirstURL: first}
	return version, nil
}

func (f *fakeRepo) Delete(ctx context.Context, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mappings, domain)
	return nil
}

func TestStore_GetReturnsNilOnMiss(t *testing.T) {
	s := New(newFakeRepo(), arbor.NewLogger())
	m, err := s.Get(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil mapping on miss, got %+v", m)
	}
}

func TestStore_LearnMergesAcrossCalls(t *testing.T) {
	s := New(newFakeRepo(), arbor.NewLogger())
	ctx := context.Background()

	plan1 := []models.FieldPlanEntry{{Selector: "#email", ProfileKey: "email", Confidence: 0.7}}
	m1, err := s.Learn(ctx, "example.com", "https://example.com/join", plan1)
	if err != nil {
		t.Fatalf("learn 1: %v", err)
	}
	if m1.Version != 1 || len(m1.Plan) != 1 {
		t.Fatalf("unexpected first learn result: %+v", m1)
	}

	plan2 := []models.FieldPlanEntry{{Selector: "#password", ProfileKey: "password", Confidence: 0.9}}
	m2, err := s.Learn(ctx, "example.com", "https://example.com/join/step2", plan2)
	if err != nil {
		t.Fatalf("learn 2: %v", err)
	}
	if m2.Version != 2 {
		t.Fatalf("expected version 2, got %d", m2.Version)
	}
	if len(m2.Plan) != 2 {
		t.Fatalf("expected merged plan of 2 entries, got %+v", m2.Plan)
	}
	if m2.FirstURL != "https://example.com/join" {
		t.Fatalf("expected first url preserved, got %q", m2.FirstURL)
	}
}

func TestStore_LearnHigherConfidenceWinsOnConflict(t *testing.T) {
	s := New(newFakeRepo(), arbor.NewLogger())
	ctx := context.Background()

	low := []models.FieldPlanEntry{{Selector: "#email", ProfileKey: "email", Confidence: 0.5}}
	if _, err := s.Learn(ctx, "example.com", "https://example.com", low); err != nil {
		t.Fatalf("learn low: %v", err)
	}

	high := []models.FieldPlanEntry{{Selector: "#email", ProfileKey: "email", Confidence: 0.95}}
	m, err := s.Learn(ctx, "example.com", "https://example.com", high)
	if err != nil {
		t.Fatalf("learn high: %v", err)
	}
	if len(m.Plan) != 1 || m.Plan[0].Confidence != 0.95 {
		t.Fatalf("expected higher-confidence entry to win, got %+v", m.Plan)
	}
}

func TestStore_ConcurrentLearnersSameDomainSerialize(t *testing.T) {
	s := New(newFakeRepo(), arbor.NewLogger())
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			entry := []models.FieldPlanEntry{{Selector: "#field" + string(rune('a'+i)), ProfileKey: "x", Confidence: 0.5}}
			if _, err := s.Learn(ctx, "concurrent.example.com", "https://concurrent.example.com", entry); err != nil {
				t.Errorf("learn: %v", err)
			}
		}()
	}
	wg.Wait()

	final, err := s.Get(ctx, "concurrent.example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Version != n {
		t.Fatalf("expected version %d after %d serialized learners, got %d", n, n, final.Version)
	}
	if len(final.Plan) != n {
		t.Fatalf("expected %d distinct merged entries, got %d", n, len(final.Plan))
	}
}
