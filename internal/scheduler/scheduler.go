// Package scheduler implements the Job Scheduler (C10, spec §4.8): accepts
// jobs up to a concurrency cap, runs them on a fixed pool of reused
// workers, streams progress through bounded per-job channels, and enforces
// cooperative cancellation. Grounded on the teacher's robfig/cron-backed
// internal/services/scheduler.Service for the recurring-trigger surface and
// internal/jobs/worker.JobProcessor for the pull-run-repeat worker loop,
// generalized from a single-queue cron runner to a capacity-bounded pool
// driving the Pipeline Executor.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

// Executor is the narrow slice of pipeline.Executor the scheduler drives.
// Declared here (not imported) so the scheduler package does not need to
// know about browser/captcha/resolver wiring.
type Executor interface {
	Run(ctx context.Context, job *models.Job) error
}

var (
	ErrCapacityExhausted = errors.New("scheduler: max_concurrent_jobs reached")
	ErrLicenseInvalid    = errors.New("scheduler: license invalid, new jobs refused")
	ErrJobNotFound       = errors.New("scheduler: job not found")
)

// runningJob is one job's scheduler-side bookkeeping: the job itself, the
// context the worker runs it under (cancellable independently of every
// other job), and when its worker picked it up.
type runningJob struct {
	job       *models.Job
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
}

// Status is the scheduler-wide snapshot returned by status() (spec §4.8).
type Status struct {
	Active    int                  `json:"active"`
	Queued    int                  `json:"queued"`
	Completed int                  `json:"completed"`
	Failed    int                  `json:"failed"`
	Degraded  bool                 `json:"degraded"`
	Jobs      []models.JobSnapshot `json:"jobs"`
}

// Scheduler accepts jobs, assigns them to a fixed pool of reused workers,
// and tracks scheduler-wide counters and per-job progress subscriptions.
type Scheduler struct {
	executor Executor
	events   interfaces.EventService
	cfg      common.SchedulerConfig
	logger   arbor.ILogger

	queue chan *runningJob

	mu        sync.Mutex
	active    map[string]*runningJob
	completed int
	failed    int
	degraded  bool

	subMu       sync.Mutex
	subscribers map[string]*progressSink

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler. Run must be called to start its worker pool,
// stale-job detector, and recurring-trigger cron.
func New(executor Executor, events interfaces.EventService, cfg common.SchedulerConfig, logger arbor.ILogger) *Scheduler {
	maxConcurrent := cfg.MaxConcurrentJobs
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Scheduler{
		executor:    executor,
		events:      events,
		cfg:         cfg,
		logger:      logger,
		queue:       make(chan *runningJob, maxConcurrent),
		active:      make(map[string]*runningJob),
		subscribers: make(map[string]*progressSink),
		cron:        cron.New(),
	}
}

// Run starts the worker pool (one goroutine per max_concurrent_jobs slot,
// reused across jobs per spec §4.8 "Scheduling discipline"), the stale-job
// detector, and the recurring-trigger cron. Stop shuts all three down.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.events != nil {
		_ = s.events.Subscribe(interfaces.EventJobProgress, s.onProgressEvent)
	}

	maxConcurrent := cap(s.queue)
	for i := 0; i < maxConcurrent; i++ {
		s.wg.Add(1)
		go s.workerLoop()
	}

	staleTimeout := common.ParseDurationOr(s.cfg.StaleJobTimeout, 15*time.Minute)
	staleInterval := common.ParseDurationOr(s.cfg.StaleCheckInterval, 5*time.Minute)
	s.wg.Add(1)
	go s.staleJobDetectorLoop(staleTimeout, staleInterval)

	s.cron.Start()

	if s.logger != nil {
		s.logger.Info().Int("max_concurrent_jobs", maxConcurrent).Msg("job scheduler started")
	}
}

// Stop drains the worker pool and background loops. It does not forcibly
// cancel in-flight jobs; callers wanting that should StopAll first.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
	s.cancel()
	close(s.queue)
	s.wg.Wait()
}

// SetDegraded toggles the license-invalid rejection flag (spec §4.9 step 3:
// invalid license makes the scheduler reject new jobs but does not kill
// running ones).
func (s *Scheduler) SetDegraded(degraded bool) {
	s.mu.Lock()
	s.degraded = degraded
	s.mu.Unlock()
}

// StartJob enqueues a job for the given profile against url (already
// resolved from a site id by the caller, if applicable). Returns
// ErrCapacityExhausted when active jobs equal max_concurrent_jobs, or
// ErrLicenseInvalid when degraded.
func (s *Scheduler) StartJob(ctx context.Context, profileID, url, siteID string, submit, headless bool) (*models.Job, error) {
	s.mu.Lock()
	if s.degraded {
		s.mu.Unlock()
		return nil, ErrLicenseInvalid
	}
	if len(s.active) >= cap(s.queue) {
		s.mu.Unlock()
		return nil, ErrCapacityExhausted
	}

	job := models.NewJob(uuid.NewString(), url, profileID, submit, headless)
	job.SiteID = siteID

	jobCtx, cancel := context.WithCancel(s.ctx)
	rj := &runningJob{job: job, ctx: jobCtx, cancel: cancel, startedAt: time.Now()}
	s.active[job.ID] = rj
	s.mu.Unlock()

	s.subMu.Lock()
	s.subscribers[job.ID] = newProgressSink(s.progressBufferSize())
	s.subMu.Unlock()

	s.queue <- rj
	return job, nil
}

func (s *Scheduler) progressBufferSize() int {
	if s.cfg.ProgressBufferSize > 0 {
		return s.cfg.ProgressBufferSize
	}
	return 64
}

func (s *Scheduler) workerLoop() {
	defer s.wg.Done()
	for rj := range s.queue {
		s.runOne(rj)
	}
}

func (s *Scheduler) runOne(rj *runningJob) {
	job := rj.job

	err := s.executor.Run(rj.ctx, job)
	if err != nil && s.logger != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("executor returned unexpected error")
	}

	s.mu.Lock()
	delete(s.active, job.ID)
	switch job.Outcome() {
	case models.OutcomeSuccess, models.OutcomePartialSuccess:
		s.completed++
	default:
		s.failed++
	}
	s.mu.Unlock()

	s.subMu.Lock()
	if sink, ok := s.subscribers[job.ID]; ok {
		sink.close()
		delete(s.subscribers, job.ID)
	}
	s.subMu.Unlock()
}

// StopAll requests cancellation of every active job and returns the count
// signalled.
func (s *Scheduler) StopAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rj := range s.active {
		rj.job.RequestCancel()
		rj.cancel()
		n++
	}
	return n
}

// StopJob requests cancellation of one active job.
func (s *Scheduler) StopJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rj, ok := s.active[jobID]
	if !ok {
		return ErrJobNotFound
	}
	rj.job.RequestCancel()
	rj.cancel()
	return nil
}

// Status reports scheduler-wide counters and a snapshot of active jobs.
// Each job is copied via Snapshot rather than shared as a live pointer, so
// the HTTP handler marshaling this response never races the executor
// goroutine still mutating the job underneath it.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]models.JobSnapshot, 0, len(s.active))
	for _, rj := range s.active {
		jobs = append(jobs, rj.job.Snapshot())
	}
	return Status{
		Active:    len(s.active),
		Queued:    len(s.queue),
		Completed: s.completed,
		Failed:    s.failed,
		Degraded:  s.degraded,
		Jobs:      jobs,
	}
}

// Subscribe returns the receive function for job_id's progress stream
// (spec §4.8 "subscribe(job_id)"). The returned function blocks until the
// next event, the stream ends, or ctx is cancelled.
func (s *Scheduler) Subscribe(jobID string) (func(ctx context.Context) (models.ProgressEvent, bool), error) {
	s.subMu.Lock()
	sink, ok := s.subscribers[jobID]
	s.subMu.Unlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return sink.pull, nil
}

func (s *Scheduler) onProgressEvent(ctx context.Context, ev interfaces.Event) error {
	progress, ok := ev.Payload.(models.ProgressEvent)
	if !ok {
		return nil
	}
	s.subMu.Lock()
	sink, ok := s.subscribers[progress.JobID]
	s.subMu.Unlock()
	if !ok {
		return nil
	}
	sink.push(progress)
	return nil
}

// RegisterRecurring wires a cron-scheduled automatic trigger (spec.md's
// domain-stack note on recurring job triggers): on each firing it starts a
// job for profileID against url, logging (not surfacing) capacity/license
// refusals since there is no caller to return them to.
func (s *Scheduler) RegisterRecurring(cronExpr, profileID, url, siteID string, submit, headless bool) (cron.EntryID, error) {
	return s.cron.AddFunc(cronExpr, func() {
		if _, err := s.StartJob(s.ctx, profileID, url, siteID, submit, headless); err != nil && s.logger != nil {
			s.logger.Warn().Err(err).Str("url", url).Msg("recurring job trigger skipped")
		}
	})
}

// staleJobDetectorLoop force-completes jobs stuck in a non-terminal phase
// past timeout (spec SUPPLEMENTED FEATURES "Stale-job detector"). It
// finalizes the job itself (internal_error, not cancelled) rather than
// just requesting cancellation and waiting for the executor to notice,
// since a stuck job's executor goroutine is by definition not making
// forward progress. Job.Finalize's terminal-phase guard makes this race
// safe against the executor goroutine finalizing the same job at the same
// moment: whichever of the two calls Finalize first wins, the other is a
// no-op, so the job's terminal fields are only ever written once.
func (s *Scheduler) staleJobDetectorLoop(timeout, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.detectStale(timeout)
		}
	}
}

func (s *Scheduler) detectStale(timeout time.Duration) {
	now := time.Now()

	s.mu.Lock()
	var stale []*runningJob
	for _, rj := range s.active {
		if now.Sub(rj.startedAt) > timeout {
			stale = append(stale, rj)
		}
	}
	s.mu.Unlock()

	for _, rj := range stale {
		rj.job.RequestCancel()
		finalized := rj.job.Finalize(models.PhaseFailed, models.OutcomeFailed, models.ErrInternal, time.Now())
		rj.cancel()
		if finalized && s.logger != nil {
			s.logger.Warn().Str("job_id", rj.job.ID).Dur("age", now.Sub(rj.startedAt)).Msg("stale job force-failed")
		}
	}
}
