// Package pipeline implements the Pipeline Executor (C9, spec §4.4): the
// forward-only state machine that drives one job from navigation through
// learning, orchestrating the Browser Capability, Field Resolver, CAPTCHA
// Solver, and Domain Mapping Store. Grounded on the teacher's
// internal/services/crawler.Executor phase-driven job runner, generalized
// from a single crawl phase to the nine-phase form-fill state machine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/captcha"
	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
	"github.com/formflow/automation/internal/resolver"
)

// Executor runs jobs end-to-end. One Executor is shared across jobs; all
// per-job state lives on the models.Job and models.Profile values passed
// into Run, so Executor itself holds no per-job mutable state.
type Executor struct {
	browser     interfaces.BrowserCapability
	resolver    interfaces.FieldResolver
	profiles    interfaces.ProfileRepo
	sites       interfaces.SiteRepo
	domainStore interfaces.DomainMappingStore
	history     interfaces.HistoryRepo
	events      interfaces.EventService
	captcha     *captcha.Solver // nil disables the captcha phase's solve attempt

	browserCfg  common.BrowserConfig
	pipelineCfg common.PipelineConfig
	resolverCfg common.ResolverConfig

	dismissSelectors []string
	submitPhrases    []string

	logger arbor.ILogger
}

// New builds an Executor, loading the dismiss-selector and submit-phrase
// resource files referenced by resolverCfg.
func New(
	browserCap interfaces.BrowserCapability,
	fieldResolver interfaces.FieldResolver,
	profiles interfaces.ProfileRepo,
	sites interfaces.SiteRepo,
	domainStore interfaces.DomainMappingStore,
	history interfaces.HistoryRepo,
	events interfaces.EventService,
	solver *captcha.Solver,
	browserCfg common.BrowserConfig,
	pipelineCfg common.PipelineConfig,
	resolverCfg common.ResolverConfig,
	logger arbor.ILogger,
) *Executor {
	logFn := func(err error) {
		if logger != nil {
			logger.Warn().Err(err).Msg("pipeline resource file load failed, continuing without it")
		}
	}

	return &Executor{
		browser:          browserCap,
		resolver:         fieldResolver,
		profiles:         profiles,
		sites:            sites,
		domainStore:      domainStore,
		history:          history,
		events:           events,
		captcha:          solver,
		browserCfg:       browserCfg,
		pipelineCfg:      pipelineCfg,
		resolverCfg:      resolverCfg,
		dismissSelectors: loadDismissSelectors(resolverCfg.DismissSelectorsFile, logFn),
		submitPhrases:    loadSubmitPhrases(resolverCfg.SubmitPhrasesFile, logFn),
		logger:           logger,
	}
}

// terminalStepIndex is phaseOrder's last non-terminal index (models.PhaseDone),
// used to turn a phase into a monotonic progress percentage.
const terminalStepIndex = 8

// Run drives job through the full state machine. It returns an error only
// for conditions outside the documented failure model (e.g. the profile
// itself cannot be loaded); every documented failure kind is instead
// recorded on job via Outcome/ErrorKind and Run returns nil.
func (e *Executor) Run(ctx context.Context, job *models.Job) error {
	job.Start(time.Now())
	e.publish(ctx, job, "started", "job started", 0, "")

	profile, err := e.profiles.Get(ctx, job.ProfileID)
	if err != nil {
		e.fail(ctx, job, models.ErrInternal, fmt.Errorf("load profile %s: %w", job.ProfileID, err))
		return nil
	}

	domain, err := common.RegistrableDomain(job.URL)
	if err != nil {
		e.fail(ctx, job, models.ErrInternal, fmt.Errorf("parse target url: %w", err))
		return nil
	}

	session, err := e.navigatePhase(ctx, job)
	if err != nil {
		return nil
	}
	defer session.Close()

	if e.checkCancel(ctx, job) {
		return nil
	}
	e.clearPhase(ctx, job, session)

	if e.checkCancel(ctx, job) {
		return nil
	}
	plan, fields, err := e.detectPhase(ctx, job, session, domain)
	if err != nil {
		return nil
	}

	values := profile.CanonicalValues()
	fieldTimeout := common.ParseDurationOr(e.pipelineCfg.FieldFillTimeout, 10*time.Second)

	entries := plan.Entries
	var primaryPassword string
	submitted := false

	maxSteps := e.resolverCfg.MaxFormSteps
	if maxSteps <= 0 {
		maxSteps = 10
	}

	for step := 0; step < maxSteps; step++ {
		if e.checkCancel(ctx, job) {
			return nil
		}

		fc := &fillContext{
			session:      session,
			bySelector:   descriptorsBySelector(fields),
			byName:       descriptorsByName(fields),
			profile:      profile,
			values:       values,
			fieldTimeout: fieldTimeout,
		}
		e.fillPhase(ctx, job, fc, entries, &primaryPassword)

		if e.checkCancel(ctx, job) {
			return nil
		}

		if err := e.captchaPhase(ctx, job, session, job.URL); err != nil {
			return nil
		}

		if !job.Submit {
			break
		}

		didSubmit, multiStep, err := e.submitPhase(ctx, job, session, fields)
		if err != nil {
			return nil
		}
		submitted = submitted || didSubmit

		if !multiStep || step+1 >= maxSteps {
			break
		}

		nextPlan, nextFields, derr := e.detectPhase(ctx, job, session, domain)
		if derr != nil {
			// No fields left to detect on what turned out not to be a
			// genuine next step; treat what we have as final.
			break
		}
		entries = nextPlan.Entries
		fields = nextFields
	}

	e.learnPhase(ctx, job, domain, job.URL, entries, plan.Source)
	e.finish(ctx, job, submitted)
	e.updateSiteStatus(ctx, job, entries, plan.Source)
	return nil
}

func (e *Executor) navigatePhase(ctx context.Context, job *models.Job) (interfaces.BrowserSession, error) {
	e.transition(ctx, job, models.PhaseNavigating, "navigating to target url")

	navTimeout := common.ParseDurationOr(e.browserCfg.NavigationTimeout, 30*time.Second)
	maxAttempts := e.pipelineCfg.MaxNavRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	baseDelay := common.ParseDurationOr(e.pipelineCfg.NavRetryBaseDelay, 2*time.Second)
	maxDelay := common.ParseDurationOr(e.pipelineCfg.NavRetryMaxDelay, 10*time.Second)

	var session interfaces.BrowserSession
	var lastErr error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		opts := interfaces.OpenOptions{Undetected: true, Headless: job.Headless, UserAgent: e.browserCfg.UserAgent}
		s, err := e.browser.Open(ctx, job.URL, opts)
		if err == nil {
			if waitErr := s.WaitReady(ctx, navTimeout); waitErr != nil {
				_ = s.Close()
				lastErr = waitErr
			} else {
				session = s
				break
			}
		} else {
			lastErr = err
		}

		if attempt == maxAttempts-1 {
			break
		}
		if e.logger != nil {
			e.logger.Warn().Err(lastErr).Int("attempt", attempt+1).Str("job_id", job.ID).Msg("navigation attempt failed, retrying")
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = maxAttempts
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	if session == nil {
		// A cancellation (cooperative or via ctx) that lands during the
		// navigation wait is a suspension point, not a genuine navigation
		// failure (spec §4.8): it must short-circuit to cancelled rather
		// than being reported as navigation_timeout.
		if job.CancelRequested() || ctx.Err() != nil {
			e.checkCancel(ctx, job)
			return nil, lastErr
		}
		e.fail(ctx, job, models.ErrNavigationTimeout, fmt.Errorf("navigation failed after %d attempts: %w", maxAttempts, lastErr))
		return nil, lastErr
	}
	return session, nil
}

func (e *Executor) clearPhase(ctx context.Context, job *models.Job, session interfaces.BrowserSession) {
	e.transition(ctx, job, models.PhaseClearing, "dismissing overlays")
	for _, selector := range e.dismissSelectors {
		visible, err := session.IsVisible(ctx, selector)
		if err != nil || !visible {
			continue
		}
		if err := session.Click(ctx, selector, 2*time.Second); err != nil && e.logger != nil {
			e.logger.Debug().Err(err).Str("selector", selector).Msg("dismiss click failed, ignoring")
		}
	}
}

func (e *Executor) detectPhase(ctx context.Context, job *models.Job, session interfaces.BrowserSession, domain string) (*interfaces.FieldPlan, []models.FieldDescriptor, error) {
	e.transition(ctx, job, models.PhaseDetecting, "detecting fields")

	plan, err := e.resolver.Resolve(ctx, domain, session, models.CanonicalProfileKeys)
	if err != nil {
		if errors.Is(err, resolver.ErrNoFields) {
			e.fail(ctx, job, models.ErrNoFields, err)
		} else {
			e.fail(ctx, job, models.ErrInternal, err)
		}
		return nil, nil, err
	}
	job.SetPlanSource(plan.Source)

	fields, qerr := session.QueryFields(ctx)
	if qerr != nil && e.logger != nil {
		e.logger.Warn().Err(qerr).Msg("post-detect field re-query failed, radio/select option lookups degraded")
	}
	return plan, fields, nil
}

func (e *Executor) fillPhase(ctx context.Context, job *models.Job, fc *fillContext, entries []models.FieldPlanEntry, primaryPassword *string) {
	e.transition(ctx, job, models.PhaseFilling, "filling fields")

	filled := 0
	for _, entry := range entries {
		if job.CancelRequested() || ctx.Err() != nil {
			return
		}

		switch entry.Kind {
		case models.FieldKindSubmit, models.FieldKindCaptcha, models.FieldKindOther:
			continue
		}

		if err := fillEntry(ctx, fc, entry, primaryPassword); err != nil {
			if e.logger != nil {
				e.logger.Warn().Err(err).Str("selector", entry.Selector).Str("job_id", job.ID).Msg("field fill error")
			}
			continue
		}
		filled++
		job.IncrementFieldsFilled()
		e.publish(ctx, job, "field_filled", entry.Selector, filled, "")
	}
}

func (e *Executor) captchaPhase(ctx context.Context, job *models.Job, session interfaces.BrowserSession, pageURL string) error {
	e.transition(ctx, job, models.PhaseCaptcha, "checking for captcha")

	if e.captcha == nil {
		return nil
	}

	sub, screenshotSelector, present, err := detectCaptcha(ctx, session, pageURL)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn().Err(err).Msg("captcha probe failed, proceeding")
		}
		return nil
	}
	if !present {
		return nil
	}
	e.publish(ctx, job, "captcha_detected", string(sub.Kind), 0, "")

	var screenshot []byte
	if screenshotSelector != "" {
		if shot, serr := session.Screenshot(ctx, screenshotSelector); serr == nil {
			screenshot = shot
		}
	}

	solution, err := e.captcha.Solve(ctx, sub, screenshot)
	if err != nil {
		if e.pipelineCfg.RequireCaptcha {
			e.fail(ctx, job, models.ErrCaptchaFailed, err)
			return err
		}
		if e.logger != nil {
			e.logger.Warn().Err(err).Msg("captcha solve failed, proceeding (require_captcha=false)")
		}
		return nil
	}

	if err := injectCaptchaSolution(ctx, session, sub.Kind, solution); err != nil {
		if e.pipelineCfg.RequireCaptcha {
			e.fail(ctx, job, models.ErrCaptchaFailed, err)
			return err
		}
		if e.logger != nil {
			e.logger.Warn().Err(err).Msg("captcha solution injection failed, proceeding")
		}
	}
	return nil
}

func (e *Executor) submitPhase(ctx context.Context, job *models.Job, session interfaces.BrowserSession, fields []models.FieldDescriptor) (submitted bool, multiStep bool, err error) {
	e.transition(ctx, job, models.PhaseSubmitting, "submitting")

	if !job.Submit {
		return false, false, nil
	}

	selector := findSubmitControl(fields, e.submitPhrases)
	if selector == "" {
		notFoundErr := fmt.Errorf("no submit control located")
		e.fail(ctx, job, models.ErrSubmitNotFound, notFoundErr)
		return false, false, notFoundErr
	}

	beforeURL, _ := session.CurrentURL(ctx)
	if err := session.Click(ctx, selector, 10*time.Second); err != nil {
		e.fail(ctx, job, models.ErrSubmitNotFound, fmt.Errorf("submit click failed: %w", err))
		return false, false, err
	}

	postDelay := common.ParseDurationOr(e.pipelineCfg.PostSubmitDelay, 2*time.Second)
	select {
	case <-ctx.Done():
		return true, false, nil
	case <-time.After(postDelay):
	}

	afterURL, _ := session.CurrentURL(ctx)
	urlChanged := beforeURL != "" && afterURL != "" && beforeURL != afterURL

	newFields, qerr := session.QueryFields(ctx)
	if qerr != nil {
		return true, false, nil
	}
	multiStep = !urlChanged && hasRemainingFormControls(newFields)
	return true, multiStep, nil
}

func (e *Executor) learnPhase(ctx context.Context, job *models.Job, domain, firstURL string, entries []models.FieldPlanEntry, source models.PlanSource) {
	if source == models.PlanSourceCached || job.FieldsFilled() == 0 {
		return
	}
	e.transition(ctx, job, models.PhaseLearning, "learning field plan")

	mapping, err := e.domainStore.Learn(ctx, domain, firstURL, entries)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn().Err(err).Str("domain", domain).Msg("domain mapping learn failed")
		}
		return
	}
	_ = e.events.Publish(ctx, interfaces.Event{Type: interfaces.EventDomainMappingLearned, Payload: mapping})
}

func (e *Executor) finish(ctx context.Context, job *models.Job, submitted bool) {
	var outcome models.JobOutcome
	switch {
	case !job.Submit, submitted:
		outcome = models.OutcomeSuccess
	case job.FieldsFilled() > 0:
		outcome = models.OutcomePartialSuccess
	default:
		outcome = models.OutcomeSuccess
	}

	if !job.Finalize(models.PhaseDone, outcome, "", time.Now()) {
		return
	}
	e.publish(ctx, job, "completed", "job finished", 0, "")
	e.appendHistory(ctx, job)
}

// updateSiteStatus writes the job's outcome back onto its associated Site
// record, mapping partial_success per resolverCfg.PartialSuccessAs (spec.md
// §9 Open Question: "applied when updating Site.last_status").
func (e *Executor) updateSiteStatus(ctx context.Context, job *models.Job, entries []models.FieldPlanEntry, source models.PlanSource) {
	if job.SiteID == "" || e.sites == nil {
		return
	}

	status := models.SiteStatusFailed
	switch job.Outcome() {
	case models.OutcomeSuccess:
		status = models.SiteStatusSuccess
	case models.OutcomePartialSuccess:
		if e.resolverCfg.PartialSuccessAs == "success" {
			status = models.SiteStatusSuccess
		} else {
			status = models.SiteStatusFailed
		}
	}

	if err := e.sites.UpdateStatus(ctx, job.SiteID, status, job.FieldsFilled(), time.Now()); err != nil && e.logger != nil {
		e.logger.Warn().Err(err).Str("site_id", job.SiteID).Msg("update site status failed")
	}

	if source != models.PlanSourceCached && len(entries) > 0 {
		if err := e.sites.UpdateCachedPlan(ctx, job.SiteID, entries); err != nil && e.logger != nil {
			e.logger.Warn().Err(err).Str("site_id", job.SiteID).Msg("update site cached plan failed")
		}
	}
}

// checkCancel observes cooperative cancellation (job.CancelRequested) or
// context cancellation, finalizing job as cancelled if either fired.
// Spec P4 bounds the observation latency to the scheduler's cancel poll
// interval (default 2s, well under the 5s property); Run calls this at
// every phase boundary so a cancel is never missed for more than one
// phase's worth of work.
func (e *Executor) checkCancel(ctx context.Context, job *models.Job) bool {
	if job.IsTerminal() {
		// Already finalized by something outside the normal phase flow (the
		// scheduler's stale-job detector force-completes a job and cancels
		// its context in the same step); don't clobber that outcome.
		return true
	}

	cancelled := job.CancelRequested()
	if !cancelled {
		select {
		case <-ctx.Done():
			cancelled = true
		default:
		}
	}
	if !cancelled {
		return false
	}

	// Finalize reports false if something else (the stale-job detector)
	// raced us to terminal in between the IsTerminal check above and here;
	// in that case its own finalization already published and recorded
	// history, so don't do it twice.
	if !job.Finalize(models.PhaseCancelled, models.OutcomeCancelled, models.ErrCancelled, time.Now()) {
		return true
	}
	e.publish(ctx, job, "completed", "job cancelled", 0, "")
	e.appendHistory(ctx, job)
	return true
}

func (e *Executor) fail(ctx context.Context, job *models.Job, kind models.ErrorKind, cause error) {
	if !job.Finalize(models.PhaseFailed, models.OutcomeFailed, kind, time.Now()) {
		return
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if e.logger != nil {
		e.logger.Error().Err(cause).Str("job_id", job.ID).Str("error_kind", string(kind)).Msg("job failed")
	}
	e.publish(ctx, job, "error", msg, 0, msg)
	e.appendHistory(ctx, job)
}

func (e *Executor) appendHistory(ctx context.Context, job *models.Job) {
	var errKind *models.ErrorKind
	if k := job.ErrorKind(); k != "" {
		errKind = &k
	}

	var duration time.Duration
	if started, finished := job.StartedAt(), job.FinishedAt(); started != nil && finished != nil {
		duration = finished.Sub(*started)
	}

	outcome := job.Outcome()
	entry := models.FillHistoryEntry{
		JobID:        job.ID,
		SiteID:       job.SiteID,
		ProfileID:    job.ProfileID,
		URL:          job.URL,
		Success:      outcome == models.OutcomeSuccess || outcome == models.OutcomePartialSuccess,
		FieldsFilled: job.FieldsFilled(),
		ErrorKind:    errKind,
		Duration:     duration,
		CreatedAt:    time.Now(),
	}
	if err := e.history.Append(ctx, entry); err != nil && e.logger != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("append fill history failed")
	}
}

// transition advances job to phase, raising its monotonic progress percent,
// and publishes a progress event (spec §4.4 "Transitions are forward-
// only... Each... transition emits a progress event"). job.Transition
// itself refuses to move progress_percent backward or to touch a job that
// already reached a terminal phase, so a multi-step form's re-detect
// (re-entering PhaseDetecting after Filling/Captcha/Submitting) never
// regresses progress (spec P1).
func (e *Executor) transition(ctx context.Context, job *models.Job, phase models.JobPhase, message string) {
	percent := 0
	if idx := models.PhaseIndex(phase); idx >= 0 {
		percent = idx * 100 / terminalStepIndex
	}
	job.Transition(phase, percent)
	e.publish(ctx, job, "progress", message, 0, "")
}

func (e *Executor) publish(ctx context.Context, job *models.Job, eventType, message string, count int, errMsg string) {
	event := models.ProgressEvent{
		Type:      eventType,
		JobID:     job.ID,
		Phase:     job.Phase(),
		Percent:   job.ProgressPercent(),
		Message:   message,
		Count:     count,
		Error:     errMsg,
		Timestamp: time.Now(),
	}
	if err := e.events.Publish(ctx, interfaces.Event{Type: interfaces.EventJobProgress, Payload: event}); err != nil && e.logger != nil {
		e.logger.Debug().Err(err).Str("job_id", job.ID).Msg("publish progress event failed")
	}
}

func descriptorsBySelector(fields []models.FieldDescriptor) map[string]models.FieldDescriptor {
	out := make(map[string]models.FieldDescriptor, len(fields))
	for _, f := range fields {
		out[f.Selector] = f
	}
	return out
}

func descriptorsByName(fields []models.FieldDescriptor) map[string][]models.FieldDescriptor {
	out := make(map[string][]models.FieldDescriptor, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			continue
		}
		out[f.Name] = append(out[f.Name], f)
	}
	return out
}

func hasRemainingFormControls(fields []models.FieldDescriptor) bool {
	for _, f := range fields {
		if f.Hidden || !f.Visible || f.Disabled {
			continue
		}
		switch f.Tag {
		case "input", "select", "textarea":
			if f.Type != "submit" && f.Type != "button" && f.Type != "hidden" {
				return true
			}
		}
	}
	return false
}
