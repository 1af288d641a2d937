package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
)

// Factory implements interfaces.FieldAnalyzerFactory, lazily constructing
// and caching one client per provider. Mirrors the teacher's
// llm.ProviderFactory cloud/local split (factory.go), generalized to the
// two-provider field-analyzer contract.
type Factory struct {
	cfg    common.AIConfig
	logger arbor.ILogger

	mu      sync.Mutex
	claude  interfaces.FieldAnalyzer
	gemini  interfaces.FieldAnalyzer
}

// NewFactory returns a Factory configured from cfg.
func NewFactory(cfg common.AIConfig, logger arbor.ILogger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// Get returns the FieldAnalyzer for provider ("claude" or "gemini"); an
// empty string uses the configured default provider.
func (f *Factory) Get(provider string) (interfaces.FieldAnalyzer, error) {
	if provider == "" {
		provider = f.cfg.Provider
	}
	provider = strings.ToLower(provider)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch provider {
	case "claude", "anthropic":
		if f.claude == nil {
			analyzer, err := NewClaudeAnalyzer(f.cfg, f.logger)
			if err != nil {
				return nil, err
			}
			f.claude = analyzer
		}
		return f.claude, nil

	case "gemini", "google":
		if f.gemini == nil {
			analyzer, err := NewGeminiAnalyzer(context.Background(), f.cfg, f.logger)
			if err != nil {
				return nil, err
			}
			f.gemini = analyzer
		}
		return f.gemini, nil

	default:
		return nil, fmt.Errorf("unknown ai provider %q", provider)
	}
}
