package captcha

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
)

// ErrNoSolverConfigured signals the caller should proceed without a
// solution (spec §4.4 "captcha" phase: "On absence, solver failure, or
// timeout with require_captcha = false, proceed").
var ErrNoSolverConfigured = errors.New("no captcha solver configured")

// Solver drives the two-phase submit/poll protocol to completion (or
// max_solve_time), with an optional vision-model fallback for text
// CAPTCHAs when the provider itself is unreachable.
type Solver struct {
	client       interfaces.CaptchaSolver
	vision       interfaces.FieldAnalyzer // may be nil
	pollInterval time.Duration
	maxSolveTime time.Duration
	visionFallback bool
	logger       arbor.ILogger
}

// NewSolver builds a Solver. client may be nil (no provider configured);
// vision may be nil (no AI analyzer available for the fallback path).
func NewSolver(cfg common.CaptchaConfig, client interfaces.CaptchaSolver, vision interfaces.FieldAnalyzer, logger arbor.ILogger) *Solver {
	pollInterval := time.Duration(cfg.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	maxSolveTime := time.Duration(cfg.TimeoutSeconds) * time.Second
	if maxSolveTime <= 0 {
		maxSolveTime = 120 * time.Second
	}

	return &Solver{
		client:         client,
		vision:         vision,
		pollInterval:   pollInterval,
		maxSolveTime:   maxSolveTime,
		visionFallback: cfg.VisionFallback,
		logger:         logger,
	}
}

// Solve submits sub and polls until a solution arrives, max_solve_time
// elapses, or ctx is cancelled. screenshotPNG, if non-nil, is used for the
// vision-model fallback when the provider submission fails and
// vision_fallback is enabled and kind is text.
func (s *Solver) Solve(ctx context.Context, sub interfaces.CaptchaSubmission, screenshotPNG []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.maxSolveTime)
	defer cancel()

	if s.client == nil {
		return s.tryVisionFallback(ctx, sub, screenshotPNG, ErrNoSolverConfigured)
	}

	taskID, err := s.client.Submit(ctx, sub)
	if err != nil {
		return s.tryVisionFallback(ctx, sub, screenshotPNG, err)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			solution, done, err := s.client.Poll(ctx, taskID)
			if err != nil {
				if s.logger != nil {
					s.logger.Warn().Err(err).Str("task_id", taskID).Msg("captcha poll error, retrying")
				}
				continue
			}
			if done {
				return solution, nil
			}
		}
	}
}

func (s *Solver) tryVisionFallback(ctx context.Context, sub interfaces.CaptchaSubmission, screenshotPNG []byte, cause error) (string, error) {
	if !s.visionFallback || s.vision == nil || sub.Kind != interfaces.CaptchaText || len(screenshotPNG) == 0 {
		return "", cause
	}
	text, err := s.vision.ReadCaptchaText(ctx, interfaces.CaptchaVisionRequest{ImagePNG: screenshotPNG})
	if err != nil {
		return "", err
	}
	return text, nil
}
