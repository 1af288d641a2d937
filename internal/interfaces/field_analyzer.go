package interfaces

import (
	"context"

	"github.com/formflow/automation/internal/models"
)

// FieldAnalyzerRequest is the AI Analyzer Client's input contract (spec §4.3).
type FieldAnalyzerRequest struct {
	FormHTML           string   // truncated to a configurable byte budget, default 5000
	CanonicalKeys      []string // profile keys available to map onto
}

// FieldAnalyzerResult is the AI Analyzer Client's output contract. Entries
// are pre-filtered by confidence threshold by the caller (internal/resolver),
// not by the analyzer itself.
type FieldAnalyzerResult struct {
	Entries []models.FieldPlanEntry
}

// CaptchaVisionRequest asks the analyzer to read a cropped CAPTCHA screenshot
// (spec §4.5 "Alternative path").
type CaptchaVisionRequest struct {
	ImagePNG []byte
}

// FieldAnalyzer is the AI Analyzer Client's contract (spec §4.3, C3). Every
// failure kind (timeout, transport, parse) is returned as an error, never a
// panic; the caller maps it to ai_unavailable (spec §7) and falls back.
type FieldAnalyzer interface {
	AnalyzeFields(ctx context.Context, req FieldAnalyzerRequest) (*FieldAnalyzerResult, error)
	ReadCaptchaText(ctx context.Context, req CaptchaVisionRequest) (string, error)
	HealthCheck(ctx context.Context) error
}

// FieldAnalyzerFactory selects a FieldAnalyzer implementation by provider
// name ("claude", "gemini"), mirroring the teacher's llm.Factory cloud/local
// split (spec_full.md DOMAIN STACK).
type FieldAnalyzerFactory interface {
	Get(provider string) (FieldAnalyzer, error)
}
