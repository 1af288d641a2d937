package interfaces

import "context"

// CaptchaKind is the set of CAPTCHA types the solver recognizes by DOM
// marker (spec §4.4 "captcha" phase).
type CaptchaKind string

const (
	CaptchaRecaptcha CaptchaKind = "recaptcha"
	CaptchaHCaptcha  CaptchaKind = "hcaptcha"
	CaptchaText      CaptchaKind = "text"
)

// CaptchaSubmission is the two-phase solver's submit-time request
// (spec §4.5).
type CaptchaSubmission struct {
	SiteKey string
	PageURL string
	Kind    CaptchaKind
}

// CaptchaSolver is the CAPTCHA Solver Client's contract (spec §4.5, C4).
// Submit returns a task id; Poll blocks (subject to ctx/timeout) until a
// solution is ready or the solver gives up.
type CaptchaSolver interface {
	Submit(ctx context.Context, sub CaptchaSubmission) (taskID string, err error)
	Poll(ctx context.Context, taskID string) (solution string, done bool, err error)
}
