package interfaces

import "github.com/formflow/automation/internal/models"

// PatternMatchResult is the Pattern Matcher's output (spec §4.2, C5).
type PatternMatchSource string

const (
	MatchSourceLabel       PatternMatchSource = "label"
	MatchSourcePlaceholder PatternMatchSource = "placeholder"
	MatchSourceAttribute   PatternMatchSource = "attribute"
	MatchSourceNone        PatternMatchSource = "none"
)

// PatternMatcher deterministically maps one observed field descriptor to a
// canonical profile key, or reports no match (spec §4.2, C5). Implementations
// must be side-effect free and must not depend on call order (spec P6).
type PatternMatcher interface {
	Match(field models.FieldDescriptor) (profileKey string, source PatternMatchSource, handler models.SpecialHandler)
}

// ProfileNormalizer flattens, defaults, and derives profile fields (spec
// §4.1, C6).
type ProfileNormalizer interface {
	// Normalize returns the canonical profile-key -> value mapping for raw,
	// plus the set of keys that received a default value (the "defaulted"
	// marker spec §4.1 requires be observable).
	Normalize(raw map[string]interface{}) (values map[string]string, defaulted map[string]bool)
}
