package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
	"github.com/formflow/automation/internal/resolver"
)

// --- fakes ---------------------------------------------------------------

type fakeSession struct {
	mu       sync.Mutex
	typed    map[string]string
	clicked  []string
	current  string
	fields   []models.FieldDescriptor
	waitErrs []error // consumed one per WaitReady call
}

func (s *fakeSession) WaitReady(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waitErrs) == 0 {
		return nil
	}
	err := s.waitErrs[0]
	s.waitErrs = s.waitErrs[1:]
	return err
}
func (s *fakeSession) QueryFields(ctx context.Context) ([]models.FieldDescriptor, error) {
	return s.fields, nil
}
func (s *fakeSession) GetFormHTML(ctx context.Context, maxBytes int) (string, error) { return "", nil }
func (s *fakeSession) Type(ctx context.Context, selector, value string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typed == nil {
		s.typed = map[string]string{}
	}
	s.typed[selector] = value
	return nil
}
func (s *fakeSession) Select(ctx context.Context, selector, value string, mode interfaces.SelectMode) error {
	return nil
}
func (s *fakeSession) Click(ctx context.Context, selector string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicked = append(s.clicked, selector)
	return nil
}
func (s *fakeSession) IsVisible(ctx context.Context, selector string) (bool, error) { return false, nil }
func (s *fakeSession) CurrentURL(ctx context.Context) (string, error)               { return s.current, nil }
func (s *fakeSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	return nil, nil
}
func (s *fakeSession) ExecuteScript(ctx context.Context, js string) (interface{}, error) {
	return `{"present":false}`, nil
}
func (s *fakeSession) Close() error { return nil }

type fakeBrowser struct {
	mu       sync.Mutex
	opens    int
	openErrs []error // consumed one per Open call; nil/missing means success
	session  *fakeSession
}

func (b *fakeBrowser) Open(ctx context.Context, url string, opts interfaces.OpenOptions) (interfaces.BrowserSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	if len(b.openErrs) > 0 {
		err := b.openErrs[0]
		b.openErrs = b.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return b.session, nil
}

type fakeResolver struct {
	plan *interfaces.FieldPlan
	err  error
}

func (r *fakeResolver) Resolve(ctx context.Context, domain string, session interfaces.BrowserSession, profileKeys []string) (*interfaces.FieldPlan, error) {
	return r.plan, r.err
}

type fakeProfiles struct {
	profile *models.Profile
}

func (f *fakeProfiles) Get(ctx context.Context, id string) (*models.Profile, error) {
	if f.profile == nil {
		return nil, errors.New("not found")
	}
	return f.profile, nil
}
func (f *fakeProfiles) List(ctx context.Context) ([]*models.Profile, error)  { return nil, nil }
func (f *fakeProfiles) Create(ctx context.Context, p *models.Profile) error { return nil }
func (f *fakeProfiles) Update(ctx context.Context, p *models.Profile) error { return nil }
func (f *fakeProfiles) Delete(ctx context.Context, id string) error         { return nil }

type fakeDomainStore struct {
	mu        sync.Mutex
	learnCall int
}

func (f *fakeDomainStore) Get(ctx context.Context, domain string) (*models.DomainMapping, error) {
	return nil, nil
}
func (f *fakeDomainStore) Learn(ctx context.Context, domain, firstURL string, plan []models.FieldPlanEntry) (*models.DomainMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.learnCall++
	return &models.DomainMapping{Domain: domain, Plan: plan, Version: 1, FirstURL: firstURL}, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []models.FillHistoryEntry
}

func (f *fakeHistory) Append(ctx context.Context, entry models.FillHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakeEvents struct{}

func (fakeEvents) Subscribe(t interfaces.EventType, h interfaces.EventHandler) error   { return nil }
func (fakeEvents) Unsubscribe(t interfaces.EventType, h interfaces.EventHandler) error { return nil }
func (fakeEvents) Publish(ctx context.Context, e interfaces.Event) error               { return nil }
func (fakeEvents) PublishSync(ctx context.Context, e interfaces.Event) error           { return nil }
func (fakeEvents) Close() error                                                        { return nil }

func testProfile() *models.Profile {
	return &models.Profile{
		ID:       "p1",
		Email:    "jane@example.com",
		Password: "Secret123!",
	}
}

func testConfigs() (common.BrowserConfig, common.PipelineConfig, common.ResolverConfig) {
	return common.BrowserConfig{
			NavigationTimeout: "1s",
		}, common.PipelineConfig{
			MaxNavRetries:     1,
			NavRetryBaseDelay: "1ms",
			NavRetryMaxDelay:  "2ms",
			FieldFillTimeout:  "1s",
			PostSubmitDelay:   "1ms",
		}, common.ResolverConfig{
			MaxFormSteps: 10,
		}
}

func newExecutor(browser *fakeBrowser, res interfaces.FieldResolver, profiles interfaces.ProfileRepo, domainStore interfaces.DomainMappingStore, history interfaces.HistoryRepo) *Executor {
	browserCfg, pipelineCfg, resolverCfg := testConfigs()
	return New(browser, res, profiles, nil, domainStore, history, fakeEvents{}, nil, browserCfg, pipelineCfg, resolverCfg, arbor.NewLogger())
}

// --- tests -----------------------------------------------------------------

func TestRun_CachedPlanSkipsLearning(t *testing.T) {
	session := &fakeSession{current: "https://example.com/signup"}
	browser := &fakeBrowser{session: session}
	res := &fakeResolver{plan: &interfaces.FieldPlan{
		Source: models.PlanSourceCached,
		Entries: []models.FieldPlanEntry{
			{Selector: "#email", ProfileKey: "email", Kind: models.FieldKindEmail, Confidence: 1},
		},
	}}
	domainStore := &fakeDomainStore{}
	history := &fakeHistory{}
	exec := newExecutor(browser, res, &fakeProfiles{profile: testProfile()}, domainStore, history)

	job := models.NewJob("job1", "https://example.com/signup", "p1", false, true)
	err := exec.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, job.Outcome())
	assert.Equal(t, 1, job.FieldsFilled())
	assert.Equal(t, models.PhaseDone, job.Phase())
	assert.Equal(t, "jane@example.com", session.typed["#email"])
	assert.Equal(t, 0, domainStore.learnCall, "cached plans must not trigger a learning write")
	require.Len(t, history.entries, 1)
	assert.True(t, history.entries[0].Success)
}

func TestRun_PatternPlanTriggersLearning(t *testing.T) {
	session := &fakeSession{current: "https://newsite.example"}
	browser := &fakeBrowser{session: session}
	res := &fakeResolver{plan: &interfaces.FieldPlan{
		Source: models.PlanSourcePattern,
		Entries: []models.FieldPlanEntry{
			{Selector: "#email", ProfileKey: "email", Kind: models.FieldKindEmail, Confidence: 1},
			{Selector: "#pw", ProfileKey: "password", Kind: models.FieldKindPassword, Confidence: 1},
		},
	}}
	domainStore := &fakeDomainStore{}
	history := &fakeHistory{}
	exec := newExecutor(browser, res, &fakeProfiles{profile: testProfile()}, domainStore, history)

	job := models.NewJob("job2", "https://newsite.example/join", "p1", false, false)
	err := exec.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, job.Outcome())
	assert.Equal(t, 2, job.FieldsFilled())
	assert.Equal(t, 1, domainStore.learnCall)
}

func TestRun_NavigationFailsAfterRetriesExhausted(t *testing.T) {
	session := &fakeSession{}
	browser := &fakeBrowser{
		session:  session,
		openErrs: []error{errors.New("timeout"), errors.New("timeout")}, // MaxNavRetries=1 -> 2 attempts
	}
	res := &fakeResolver{}
	history := &fakeHistory{}
	exec := newExecutor(browser, res, &fakeProfiles{profile: testProfile()}, &fakeDomainStore{}, history)

	job := models.NewJob("job3", "https://down.example", "p1", false, false)
	err := exec.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, job.Outcome())
	assert.Equal(t, models.ErrNavigationTimeout, job.ErrorKind())
	assert.Equal(t, 2, browser.opens)
	require.Len(t, history.entries, 1)
	assert.False(t, history.entries[0].Success)
}

func TestRun_NoFieldsDetectedFailsJob(t *testing.T) {
	session := &fakeSession{}
	browser := &fakeBrowser{session: session}
	res := &fakeResolver{err: resolver.ErrNoFields}
	exec := newExecutor(browser, res, &fakeProfiles{profile: testProfile()}, &fakeDomainStore{}, &fakeHistory{})

	job := models.NewJob("job4", "https://blank.example", "p1", false, false)
	err := exec.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, job.Outcome())
	assert.Equal(t, models.ErrNoFields, job.ErrorKind())
}

func TestRun_CancellationDuringFillingStopsEarly(t *testing.T) {
	session := &fakeSession{}
	browser := &fakeBrowser{session: session}

	entries := []models.FieldPlanEntry{
		{Selector: "#f1", ProfileKey: "email", Kind: models.FieldKindEmail, Confidence: 1},
		{Selector: "#f2", ProfileKey: "email", Kind: models.FieldKindEmail, Confidence: 1},
		{Selector: "#f3", ProfileKey: "email", Kind: models.FieldKindEmail, Confidence: 1},
	}
	res := &fakeResolver{plan: &interfaces.FieldPlan{Source: models.PlanSourcePattern, Entries: entries}}

	job := models.NewJob("job5", "https://slow.example", "p1", false, false)

	// Cancel after the fill phase has started but won't have a chance to
	// run more than one field in the fake's synchronous Type(): flip the
	// flag in a concurrently-scheduled goroutine timed to land mid-loop.
	exec := newExecutor(browser, res, &fakeProfiles{profile: testProfile()}, &fakeDomainStore{}, &fakeHistory{})
	job.RequestCancel() // a cancel issued before filling is the simplest deterministic case

	err := exec.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCancelled, job.Outcome())
	assert.Equal(t, models.ErrCancelled, job.ErrorKind())
	assert.Equal(t, 0, job.FieldsFilled())
}

func TestRun_SubmitNotFoundSurfacesAsFailure(t *testing.T) {
	session := &fakeSession{fields: []models.FieldDescriptor{
		{Selector: "#email", Tag: "input", Type: "email", Visible: true},
	}}
	browser := &fakeBrowser{session: session}
	res := &fakeResolver{plan: &interfaces.FieldPlan{
		Source: models.PlanSourcePattern,
		Entries: []models.FieldPlanEntry{
			{Selector: "#email", ProfileKey: "email", Kind: models.FieldKindEmail, Confidence: 1},
		},
	}}
	exec := newExecutor(browser, res, &fakeProfiles{profile: testProfile()}, &fakeDomainStore{}, &fakeHistory{})

	job := models.NewJob("job6", "https://nosubmit.example", "p1", true, false)
	err := exec.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, job.Outcome())
	assert.Equal(t, models.ErrSubmitNotFound, job.ErrorKind())
}
