package models

import (
	"sync"
	"sync/atomic"
	"time"
)

// JobPhase is one state in the Pipeline Executor's state machine (spec §4.4).
// Transitions are forward-only except the terminal failed/cancelled states.
type JobPhase string

const (
	PhaseCreated    JobPhase = "created"
	PhaseNavigating JobPhase = "navigating"
	PhaseClearing   JobPhase = "clearing"
	PhaseDetecting  JobPhase = "detecting"
	PhaseFilling    JobPhase = "filling"
	PhaseCaptcha    JobPhase = "captcha"
	PhaseSubmitting JobPhase = "submitting"
	PhaseLearning   JobPhase = "learning"
	PhaseDone       JobPhase = "done"
	PhaseFailed     JobPhase = "failed"
	PhaseCancelled  JobPhase = "cancelled"
)

// phaseOrder is the forward-only ordering non-terminal phases must respect;
// used to assert P1 (progress_percent monotonic, phases a prefix of this
// order) in tests and by the executor's own transition guard.
var phaseOrder = []JobPhase{
	PhaseCreated, PhaseNavigating, PhaseClearing, PhaseDetecting,
	PhaseFilling, PhaseCaptcha, PhaseSubmitting, PhaseLearning, PhaseDone,
}

// PhaseIndex returns phase's position in the forward-only order, or -1 for
// a terminal failure/cancellation phase (which has no fixed position).
func PhaseIndex(phase JobPhase) int {
	for i, p := range phaseOrder {
		if p == phase {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether phase ends the job's lifecycle.
func (p JobPhase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed || p == PhaseCancelled
}

// ErrorKind is the closed set of categorized pipeline failures (spec §7).
type ErrorKind string

const (
	ErrNavigationTimeout ErrorKind = "navigation_timeout"
	ErrNoFields          ErrorKind = "no_fields"
	ErrBrowserCrashed    ErrorKind = "browser_crashed"
	ErrFieldFillError    ErrorKind = "field_fill_error"
	ErrCaptchaFailed     ErrorKind = "captcha_failed"
	ErrSubmitNotFound    ErrorKind = "submit_not_found"
	ErrAIUnavailable     ErrorKind = "ai_unavailable"
	ErrCancelled         ErrorKind = "cancelled"
	ErrCapacityExhausted ErrorKind = "capacity_exhausted"
	ErrLicenseInvalid    ErrorKind = "license_invalid"
	ErrInternal          ErrorKind = "internal_error"
)

// JobOutcome is the user-visible terminal classification of a job (spec §7).
type JobOutcome string

const (
	OutcomeSuccess        JobOutcome = "success"
	OutcomePartialSuccess JobOutcome = "partial_success"
	OutcomeFailed         JobOutcome = "failed"
	OutcomeCancelled      JobOutcome = "cancelled"
)

// Job is one run of the pipeline against a URL using a profile. Phase is
// monotonic through the state machine unless cancellation sets it to
// cancelled; a job in a terminal phase never transitions again (spec §3).
//
// The identity fields below are set once by NewJob/StartJob before the job
// is handed to a worker goroutine and never change afterward, so they are
// safe to read without synchronization. Every field that the Pipeline
// Executor mutates while running the job, and that the Job Scheduler also
// reads (Status) or writes (StopJob/StopAll/the stale-job detector) from a
// different goroutine, lives behind mu or a dedicated atomic so the two
// goroutines never race on the same memory.
type Job struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id,omitempty"`
	URL       string    `json:"url"`
	ProfileID string    `json:"profile_id"`
	Submit    bool      `json:"submit"`
	Headless  bool      `json:"headless"`
	CreatedAt time.Time `json:"created_at"`

	// cancelRequested is checked on every fill-loop iteration (a hot path),
	// so it gets its own lock-free flag rather than sharing mu with the
	// rest of the mutable state.
	cancelRequested atomic.Bool

	mu              sync.Mutex
	phase           JobPhase
	progressPercent int
	planSource      PlanSource
	outcome         JobOutcome
	errorKind       ErrorKind
	fieldsFilled    int
	startedAt       *time.Time
	finishedAt      *time.Time
}

// NewJob creates a freshly-identified job in the created phase.
func NewJob(id, url, profileID string, submit, headless bool) *Job {
	return &Job{
		ID:        id,
		URL:       url,
		ProfileID: profileID,
		Submit:    submit,
		Headless:  headless,
		CreatedAt: time.Now(),
		phase:     PhaseCreated,
	}
}

// Phase returns the job's current phase.
func (j *Job) Phase() JobPhase {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.phase
}

// ProgressPercent returns the job's current progress percentage.
func (j *Job) ProgressPercent() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progressPercent
}

// PlanSource returns the field plan source detectPhase resolved, if any.
func (j *Job) PlanSource() PlanSource {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.planSource
}

// SetPlanSource records the field plan source detectPhase resolved.
func (j *Job) SetPlanSource(source PlanSource) {
	j.mu.Lock()
	j.planSource = source
	j.mu.Unlock()
}

// Outcome returns the job's terminal outcome classification, zero-valued
// until the job finishes.
func (j *Job) Outcome() JobOutcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outcome
}

// ErrorKind returns the job's categorized failure, zero-valued until the
// job fails or is cancelled.
func (j *Job) ErrorKind() ErrorKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.errorKind
}

// FieldsFilled returns the count of fields the fill phase has completed.
func (j *Job) FieldsFilled() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fieldsFilled
}

// IncrementFieldsFilled records one more filled field and returns the new
// total.
func (j *Job) IncrementFieldsFilled() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fieldsFilled++
	return j.fieldsFilled
}

// StartedAt returns when the executor began running the job, nil if it
// has not started.
func (j *Job) StartedAt() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt
}

// Start records the time the executor began running the job.
func (j *Job) Start(t time.Time) {
	j.mu.Lock()
	j.startedAt = &t
	j.mu.Unlock()
}

// FinishedAt returns when the job reached a terminal phase, nil until then.
func (j *Job) FinishedAt() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finishedAt
}

// IsTerminal reports whether the job has reached done, failed, or
// cancelled.
func (j *Job) IsTerminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.phase.IsTerminal()
}

// RequestCancel asks the job's executor goroutine to stop at the next
// cooperative checkpoint (spec §4.8 "cancellation is cooperative").
func (j *Job) RequestCancel() {
	j.cancelRequested.Store(true)
}

// CancelRequested reports whether RequestCancel has been called.
func (j *Job) CancelRequested() bool {
	return j.cancelRequested.Load()
}

// Transition advances a non-terminal job to phase, raising progress percent
// to percent only if that is an increase. Clamping to non-decreasing
// keeps P1 ("progress_percent is monotonic within a job") from regressing
// when a multi-step form submission re-enters an earlier phase (e.g.
// detecting again after a step that turned out not to be final). It is a
// no-op once the job has reached a terminal phase.
func (j *Job) Transition(phase JobPhase, percent int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.phase.IsTerminal() {
		return
	}
	j.phase = phase
	if percent > j.progressPercent {
		j.progressPercent = percent
	}
}

// Finalize sets the job to one of its three terminal phases, always
// driving progress to 100 (spec P1 "reaches 100 iff the job is terminal").
// It reports whether this call actually performed the finalization: once a
// job is terminal, every later Finalize call is a no-op. That guarantee is
// what lets the scheduler's stale-job detector and the executor's own
// checkCancel/fail paths race to finalize the same job from different
// goroutines without either clobbering the other's terminal fields.
func (j *Job) Finalize(phase JobPhase, outcome JobOutcome, errKind ErrorKind, finishedAt time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.phase.IsTerminal() {
		return false
	}
	j.phase = phase
	j.progressPercent = 100
	j.outcome = outcome
	j.errorKind = errKind
	j.finishedAt = &finishedAt
	return true
}

// JobSnapshot is a point-in-time copy of a Job's fields: plain values, no
// lock, safe to hand to another goroutine or json.Marshal at leisure. The
// Job Scheduler returns these from Status instead of live *Job pointers so
// an HTTP handler marshaling scheduler state can never race the executor
// goroutine still mutating the job underneath it.
type JobSnapshot struct {
	ID        string `json:"id"`
	SiteID    string `json:"site_id,omitempty"`
	URL       string `json:"url"`
	ProfileID string `json:"profile_id"`
	Submit    bool   `json:"submit"`
	Headless  bool   `json:"headless"`

	Phase           JobPhase   `json:"phase"`
	ProgressPercent int        `json:"progress_percent"`
	PlanSource      PlanSource `json:"plan_source,omitempty"`

	Outcome      JobOutcome `json:"outcome,omitempty"`
	ErrorKind    ErrorKind  `json:"error_kind,omitempty"`
	FieldsFilled int        `json:"fields_filled"`

	CancelRequested bool `json:"cancel_requested"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Snapshot copies every field of j under its lock into a JobSnapshot.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:        j.ID,
		SiteID:    j.SiteID,
		URL:       j.URL,
		ProfileID: j.ProfileID,
		Submit:    j.Submit,
		Headless:  j.Headless,

		Phase:           j.phase,
		ProgressPercent: j.progressPercent,
		PlanSource:      j.planSource,

		Outcome:      j.outcome,
		ErrorKind:    j.errorKind,
		FieldsFilled: j.fieldsFilled,

		CancelRequested: j.cancelRequested.Load(),

		CreatedAt:  j.CreatedAt,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
}

// ProgressEvent is emitted on every state transition and field-fill
// completion (spec §4.4). Percent is monotonic non-decreasing within a job.
type ProgressEvent struct {
	Type      string    `json:"type"` // started, progress, field_filled, captcha_detected, completed, error, coalesced
	JobID     string    `json:"job_id"`
	Phase     JobPhase  `json:"phase"`
	Percent   int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Count     int       `json:"count,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"ts"`
}
