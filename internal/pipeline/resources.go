package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// dismissFile mirrors configs/dismiss_selectors.toml.
type dismissFile struct {
	Selectors []string `toml:"selectors"`
}

// submitFile mirrors configs/submit_phrases.toml.
type submitFile struct {
	Phrases []string `toml:"phrases"`
}

// loadDismissSelectors reads the clearing phase's candidate selector list.
// A missing or unreadable file yields an empty set rather than an error,
// matching the teacher's own load_*.go "non-fatal" resource-loading idiom.
func loadDismissSelectors(path string, logFn func(err error)) []string {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if logFn != nil {
			logFn(fmt.Errorf("read dismiss selectors file %s: %w", path, err))
		}
		return nil
	}
	var f dismissFile
	if err := toml.Unmarshal(data, &f); err != nil {
		if logFn != nil {
			logFn(fmt.Errorf("parse dismiss selectors file %s: %w", path, err))
		}
		return nil
	}
	return f.Selectors
}

// loadSubmitPhrases reads the submitting phase's button-text phrase list,
// lowercased for case-insensitive contains matching.
func loadSubmitPhrases(path string, logFn func(err error)) []string {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if logFn != nil {
			logFn(fmt.Errorf("read submit phrases file %s: %w", path, err))
		}
		return nil
	}
	var f submitFile
	if err := toml.Unmarshal(data, &f); err != nil {
		if logFn != nil {
			logFn(fmt.Errorf("parse submit phrases file %s: %w", path, err))
		}
		return nil
	}
	phrases := make([]string, len(f.Phrases))
	for i, p := range f.Phrases {
		phrases[i] = strings.ToLower(p)
	}
	return phrases
}
