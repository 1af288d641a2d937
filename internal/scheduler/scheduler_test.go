package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

// --- fakes ---------------------------------------------------------------

// fakeExecutor lets each job's behavior be scripted by url, and blocks on a
// release channel when one is set so tests can control exactly when a job
// finishes (needed to exercise capacity exhaustion and stop-while-running).
type fakeExecutor struct {
	mu      sync.Mutex
	calls   int
	release map[string]chan struct{} // url -> channel closed/sent to let the run return
	outcome map[string]models.JobOutcome
	errKind map[string]models.ErrorKind
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		release: make(map[string]chan struct{}),
		outcome: make(map[string]models.JobOutcome),
		errKind: make(map[string]models.ErrorKind),
	}
}

func (f *fakeExecutor) Run(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	f.calls++
	release := f.release[job.URL]
	outcome, hasOutcome := f.outcome[job.URL]
	errKind := f.errKind[job.URL]
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			job.Finalize(models.PhaseCancelled, models.OutcomeCancelled, models.ErrCancelled, time.Now())
			return nil
		}
	}

	if hasOutcome {
		job.Finalize(models.PhaseDone, outcome, errKind, time.Now())
	} else {
		job.Finalize(models.PhaseDone, models.OutcomeSuccess, "", time.Now())
	}
	return nil
}

// fakeEvents is a minimal in-process pub/sub good enough to exercise the
// scheduler's own Subscribe/dispatchProgress wiring, unlike the fully
// no-op fake used by the pipeline package's own tests.
type fakeEvents struct {
	mu       sync.Mutex
	handlers map[interfaces.EventType][]interfaces.EventHandler
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{handlers: make(map[interfaces.EventType][]interfaces.EventHandler)}
}

func (f *fakeEvents) Subscribe(t interfaces.EventType, h interfaces.EventHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[t] = append(f.handlers[t], h)
	return nil
}

func (f *fakeEvents) Unsubscribe(t interfaces.EventType, h interfaces.EventHandler) error {
	return nil
}

func (f *fakeEvents) Publish(ctx context.Context, e interfaces.Event) error {
	f.mu.Lock()
	handlers := append([]interfaces.EventHandler{}, f.handlers[e.Type]...)
	f.mu.Unlock()
	for _, h := range handlers {
		_ = h(ctx, e)
	}
	return nil
}

func (f *fakeEvents) PublishSync(ctx context.Context, e interfaces.Event) error { return f.Publish(ctx, e) }
func (f *fakeEvents) Close() error                                              { return nil }

func testConfig(maxConcurrent int) common.SchedulerConfig {
	return common.SchedulerConfig{
		MaxConcurrentJobs:  maxConcurrent,
		ProgressBufferSize: 4,
		StaleJobTimeout:    "50ms",
		StaleCheckInterval: "10ms",
	}
}

func newTestScheduler(exec Executor, events interfaces.EventService, maxConcurrent int) *Scheduler {
	return New(exec, events, testConfig(maxConcurrent), arbor.NewLogger())
}

// --- tests -----------------------------------------------------------------

func TestStartJob_RefusesAtCapacity(t *testing.T) {
	exec := newFakeExecutor()
	block := make(chan struct{})
	exec.release["https://a.example"] = block
	exec.release["https://b.example"] = block

	s := newTestScheduler(exec, newFakeEvents(), 2)
	s.Run(context.Background())
	defer func() { close(block); s.Stop() }()

	_, err := s.StartJob(context.Background(), "p1", "https://a.example", "", false, true)
	require.NoError(t, err)
	_, err = s.StartJob(context.Background(), "p1", "https://b.example", "", false, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Status().Active == 2
	}, time.Second, time.Millisecond)

	_, err = s.StartJob(context.Background(), "p1", "https://c.example", "", false, true)
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestStartJob_RefusesWhenDegraded(t *testing.T) {
	exec := newFakeExecutor()
	s := newTestScheduler(exec, newFakeEvents(), 2)
	s.Run(context.Background())
	defer s.Stop()

	s.SetDegraded(true)
	_, err := s.StartJob(context.Background(), "p1", "https://a.example", "", false, true)
	assert.ErrorIs(t, err, ErrLicenseInvalid)
}

func TestWorkers_AreReusedAcrossJobs(t *testing.T) {
	exec := newFakeExecutor()
	s := newTestScheduler(exec, newFakeEvents(), 1)
	s.Run(context.Background())
	defer s.Stop()

	for i := 0; i < 3; i++ {
		job, err := s.StartJob(context.Background(), "p1", "https://seq.example", "", false, true)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return job.IsTerminal()
		}, time.Second, time.Millisecond)
	}

	exec.mu.Lock()
	calls := exec.calls
	exec.mu.Unlock()
	assert.Equal(t, 3, calls, "a single worker goroutine must handle all three jobs in turn")
}

func TestStopJob_CancelsRunningJob(t *testing.T) {
	exec := newFakeExecutor()
	block := make(chan struct{})
	exec.release["https://stoppable.example"] = block

	s := newTestScheduler(exec, newFakeEvents(), 1)
	s.Run(context.Background())
	defer s.Stop()

	job, err := s.StartJob(context.Background(), "p1", "https://stoppable.example", "", false, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Status().Active == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.StopJob(job.ID))

	require.Eventually(t, func() bool {
		return job.Outcome() == models.OutcomeCancelled
	}, time.Second, time.Millisecond)
	assert.True(t, job.CancelRequested())
}

func TestStopJob_UnknownIDReturnsNotFound(t *testing.T) {
	s := newTestScheduler(newFakeExecutor(), newFakeEvents(), 1)
	s.Run(context.Background())
	defer s.Stop()

	assert.ErrorIs(t, s.StopJob("does-not-exist"), ErrJobNotFound)
}

func TestStopAll_CancelsEveryActiveJob(t *testing.T) {
	exec := newFakeExecutor()
	block := make(chan struct{})
	exec.release["https://x1.example"] = block
	exec.release["https://x2.example"] = block

	s := newTestScheduler(exec, newFakeEvents(), 2)
	s.Run(context.Background())
	defer s.Stop()

	j1, err := s.StartJob(context.Background(), "p1", "https://x1.example", "", false, true)
	require.NoError(t, err)
	j2, err := s.StartJob(context.Background(), "p1", "https://x2.example", "", false, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Status().Active == 2 }, time.Second, time.Millisecond)

	n := s.StopAll()
	assert.Equal(t, 2, n)

	require.Eventually(t, func() bool {
		return j1.Outcome() == models.OutcomeCancelled && j2.Outcome() == models.OutcomeCancelled
	}, time.Second, time.Millisecond)
}

func TestSubscribe_DeliversProgressEvents(t *testing.T) {
	exec := newFakeExecutor()
	events := newFakeEvents()
	s := newTestScheduler(exec, events, 1)
	s.Run(context.Background())
	defer s.Stop()

	job, err := s.StartJob(context.Background(), "p1", "https://quick.example", "", false, true)
	require.NoError(t, err)

	pull, err := s.Subscribe(job.ID)
	require.NoError(t, err)

	require.NoError(t, events.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventJobProgress,
		Payload: models.ProgressEvent{
			Type:    "progress",
			JobID:   job.ID,
			Phase:   models.PhaseFilling,
			Percent: 50,
		},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := pull(ctx)
	require.True(t, ok)
	assert.Equal(t, job.ID, ev.JobID)
	assert.Equal(t, 50, ev.Percent)
}

func TestSubscribe_UnknownJobReturnsNotFound(t *testing.T) {
	s := newTestScheduler(newFakeExecutor(), newFakeEvents(), 1)
	s.Run(context.Background())
	defer s.Stop()

	_, err := s.Subscribe("does-not-exist")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStaleJobDetector_ForceFailsLongRunningJob(t *testing.T) {
	exec := newFakeExecutor()
	block := make(chan struct{}) // never released: this job must be force-failed by the detector
	exec.release["https://stuck.example"] = block

	s := newTestScheduler(exec, newFakeEvents(), 1)
	s.Run(context.Background())
	defer func() { close(block); s.Stop() }()

	job, err := s.StartJob(context.Background(), "p1", "https://stuck.example", "", false, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return job.Outcome() == models.OutcomeFailed
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, models.ErrInternal, job.ErrorKind())
	assert.True(t, job.CancelRequested())
}

func TestRegisterRecurring_StartsJobOnSchedule(t *testing.T) {
	exec := newFakeExecutor()
	s := newTestScheduler(exec, newFakeEvents(), 1)
	s.Run(context.Background())
	defer s.Stop()

	_, err := s.RegisterRecurring("@every 20ms", "p1", "https://recurring.example", "", false, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.calls >= 1
	}, 2*time.Second, 5*time.Millisecond)
}
