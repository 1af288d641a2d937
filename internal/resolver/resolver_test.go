package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

type fakeDomainStore struct {
	mapping *models.DomainMapping
	getErr  error
}

func (f *fakeDomainStore) Get(ctx context.Context, domain string) (*models.DomainMapping, error) {
	return f.mapping, f.getErr
}
func (f *fakeDomainStore) Learn(ctx context.Context, domain, firstURL string, newPlan []models.FieldPlanEntry) (*models.DomainMapping, error) {
	return nil, errors.New("not used in these tests")
}

type fakeAnalyzer struct {
	result *interfaces.FieldAnalyzerResult
	err    error
}

func (f *fakeAnalyzer) AnalyzeFields(ctx context.Context, req interfaces.FieldAnalyzerRequest) (*interfaces.FieldAnalyzerResult, error) {
	return f.result, f.err
}
func (f *fakeAnalyzer) ReadCaptchaText(ctx context.Context, req interfaces.CaptchaVisionRequest) (string, error) {
	return "", errors.New("not used")
}
func (f *fakeAnalyzer) HealthCheck(ctx context.Context) error { return nil }

type fakeFactory struct{ analyzer interfaces.FieldAnalyzer }

func (f *fakeFactory) Get(provider string) (interfaces.FieldAnalyzer, error) {
	if f.analyzer == nil {
		return nil, errors.New("no analyzer configured")
	}
	return f.analyzer, nil
}

type fakeSession struct {
	fields  []models.FieldDescriptor
	html    string
	htmlErr error
}

func (s *fakeSession) WaitReady(ctx context.Context, timeout time.Duration) error {
	return nil
}
func (s *fakeSession) QueryFields(ctx context.Context) ([]models.FieldDescriptor, error) {
	return s.fields, nil
}
func (s *fakeSession) GetFormHTML(ctx context.Context, maxBytes int) (string, error) {
	return s.html, s.htmlErr
}
func (s *fakeSession) Type(ctx context.Context, selector, value string, timeout time.Duration) error {
	return nil
}
func (s *fakeSession) Select(ctx context.Context, selector, value string, mode interfaces.SelectMode) error {
	return nil
}
func (s *fakeSession) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}
func (s *fakeSession) IsVisible(ctx context.Context, selector string) (bool, error) { return true, nil }
func (s *fakeSession) CurrentURL(ctx context.Context) (string, error)               { return "", nil }
func (s *fakeSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	return nil, nil
}
func (s *fakeSession) ExecuteScript(ctx context.Context, js string) (interface{}, error) {
	return nil, nil
}
func (s *fakeSession) Close() error { return nil }

func TestResolve_CachedPlanSkipsAI(t *testing.T) {
	domainStore := &fakeDomainStore{mapping: &models.DomainMapping{
		Domain: "example.com",
		Plan:   []models.FieldPlanEntry{{Selector: "#email", ProfileKey: "email", Confidence: 0.9}},
		Version: 3,
	}}
	factory := &fakeFactory{} // no analyzer configured; must not be called
	r := New(domainStore, factory, "claude", 0.5, arbor.NewLogger())

	plan, err := r.Resolve(context.Background(), "example.com", &fakeSession{}, models.CanonicalProfileKeys)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if plan.Source != models.PlanSourceCached {
		t.Fatalf("expected cached source, got %s", plan.Source)
	}
	if len(plan.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %+v", plan.Entries)
	}
}

func TestResolve_AILayerUsedWhenNoCache(t *testing.T) {
	domainStore := &fakeDomainStore{getErr: nil, mapping: nil}
	analyzer := &fakeAnalyzer{result: &interfaces.FieldAnalyzerResult{
		Entries: []models.FieldPlanEntry{
			{Selector: "#email", ProfileKey: "email", Kind: models.FieldKindEmail, Confidence: 0.9},
			{Selector: "#low", ProfileKey: "city", Kind: models.FieldKindText, Confidence: 0.2},
		},
	}}
	factory := &fakeFactory{analyzer: analyzer}
	r := New(domainStore, factory, "claude", 0.5, arbor.NewLogger())

	session := &fakeSession{html: "<form></form>"}
	plan, err := r.Resolve(context.Background(), "example.com", session, models.CanonicalProfileKeys)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if plan.Source != models.PlanSourceAI {
		t.Fatalf("expected ai source, got %s", plan.Source)
	}
	if len(plan.Entries) != 1 || plan.Entries[0].Selector != "#email" {
		t.Fatalf("expected low-confidence entry discarded, got %+v", plan.Entries)
	}
}

func TestResolve_FallsBackToPatternWhenAIFails(t *testing.T) {
	domainStore := &fakeDomainStore{}
	factory := &fakeFactory{analyzer: &fakeAnalyzer{err: errors.New("provider down")}}
	r := New(domainStore, factory, "claude", 0.5, arbor.NewLogger())

	session := &fakeSession{
		html: "<form></form>",
		fields: []models.FieldDescriptor{
			{Selector: "#email", Tag: "input", Type: "email", Label: "Email address", Visible: true},
			{Selector: "#hidden", Tag: "input", Type: "text", Label: "Email", Visible: false},
		},
	}
	plan, err := r.Resolve(context.Background(), "example.com", session, models.CanonicalProfileKeys)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if plan.Source != models.PlanSourcePattern {
		t.Fatalf("expected pattern source, got %s", plan.Source)
	}
	if len(plan.Entries) != 1 || plan.Entries[0].ProfileKey != "email" {
		t.Fatalf("expected one matched email entry, got %+v", plan.Entries)
	}
}

func TestResolve_NoFieldsAnywhereReturnsErrNoFields(t *testing.T) {
	domainStore := &fakeDomainStore{}
	factory := &fakeFactory{analyzer: &fakeAnalyzer{result: &interfaces.FieldAnalyzerResult{}}}
	r := New(domainStore, factory, "claude", 0.5, arbor.NewLogger())

	session := &fakeSession{html: "<form></form>"}
	_, err := r.Resolve(context.Background(), "example.com", session, models.CanonicalProfileKeys)
	if !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected ErrNoFields, got %v", err)
	}
}

func TestResolve_PatternSkipsDisabledAndHiddenFields(t *testing.T) {
	domainStore := &fakeDomainStore{}
	factory := &fakeFactory{analyzer: &fakeAnalyzer{err: errors.New("provider down")}}
	r := New(domainStore, factory, "claude", 0.5, arbor.NewLogger())

	session := &fakeSession{
		fields: []models.FieldDescriptor{
			{Selector: "#email", Tag: "input", Type: "email", Label: "Email", Visible: true, Disabled: true},
			{Selector: "#city", Tag: "input", Type: "text", Label: "City", Visible: true, Hidden: true},
		},
	}
	_, err := r.Resolve(context.Background(), "example.com", session, models.CanonicalProfileKeys)
	if !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected ErrNoFields since every candidate field is disabled/hidden, got %v", err)
	}
}
