package captcha

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
)

type fakeSolver struct {
	submitErr    error
	pollsUntilDone int
	polled       int
	solution     string
}

func (f *fakeSolver) Submit(ctx context.Context, sub interfaces.CaptchaSubmission) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "task-1", nil
}

func (f *fakeSolver) Poll(ctx context.Context, taskID string) (string, bool, error) {
	f.polled++
	if f.polled < f.pollsUntilDone {
		return "", false, nil
	}
	return f.solution, true, nil
}

type fakeVision struct {
	text string
	err  error
}

func (f *fakeVision) AnalyzeFields(ctx context.Context, req interfaces.FieldAnalyzerRequest) (*interfaces.FieldAnalyzerResult, error) {
	return nil, errors.New("not used")
}
func (f *fakeVision) ReadCaptchaText(ctx context.Context, req interfaces.CaptchaVisionRequest) (string, error) {
	return f.text, f.err
}
func (f *fakeVision) HealthCheck(ctx context.Context) error { return nil }

func TestSolve_SucceedsAfterPolling(t *testing.T) {
	solver := &fakeSolver{pollsUntilDone: 2, solution: "abc123"}
	s := NewSolver(common.CaptchaConfig{PollIntervalMs: 10, TimeoutSeconds: 1}, solver, nil, nil)

	solution, err := s.Solve(context.Background(), interfaces.CaptchaSubmission{Kind: interfaces.CaptchaRecaptcha}, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc123", solution)
}

func TestSolve_NoSolverFallsBackToVision(t *testing.T) {
	vision := &fakeVision{text: "7x3k"}
	s := NewSolver(common.CaptchaConfig{VisionFallback: true, PollIntervalMs: 10, TimeoutSeconds: 1}, nil, vision, nil)

	solution, err := s.Solve(context.Background(), interfaces.CaptchaSubmission{Kind: interfaces.CaptchaText}, []byte("fake-png"))
	require.NoError(t, err)
	assert.Equal(t, "7x3k", solution)
}

func TestSolve_NoSolverNoVisionReturnsError(t *testing.T) {
	s := NewSolver(common.CaptchaConfig{PollIntervalMs: 10, TimeoutSeconds: 1}, nil, nil, nil)

	_, err := s.Solve(context.Background(), interfaces.CaptchaSubmission{Kind: interfaces.CaptchaRecaptcha}, nil)
	assert.ErrorIs(t, err, ErrNoSolverConfigured)
}

func TestSolve_TimesOutWhenNeverDone(t *testing.T) {
	solver := &fakeSolver{pollsUntilDone: 1000000}
	s := NewSolver(common.CaptchaConfig{PollIntervalMs: 5, TimeoutSeconds: 0}, solver, nil, nil)
	s.maxSolveTime = 30 * time.Millisecond

	_, err := s.Solve(context.Background(), interfaces.CaptchaSubmission{Kind: interfaces.CaptchaRecaptcha}, nil)
	require.Error(t, err)
}
