// Package matcher implements the Pattern Matcher (spec §4.2, C5): a
// deterministic, side-effect free fallback that maps an observed form field
// to a canonical profile key without calling out to an AI provider.
package matcher

import (
	"strings"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

// Matcher implements interfaces.PatternMatcher.
type Matcher struct{}

// New returns a Matcher. It holds no state: every call to Match depends only
// on its argument (spec P6).
func New() *Matcher {
	return &Matcher{}
}

// Match applies the strict-priority algorithm from spec §4.2: label, then
// placeholder, then the name/id/aria-label/autocomplete attributes, checked
// in that order against the synonym dictionary. Special handlers are
// layered on top of whatever profile key (if any) was matched.
func (m *Matcher) Match(field models.FieldDescriptor) (string, interfaces.PatternMatchSource, models.SpecialHandler) {
	handler := specialHandler(field)

	profileKey := matchAgainstText(field.Label, models.CanonicalProfileKeys)
	source := interfaces.MatchSourceLabel
	if profileKey == "" {
		profileKey = matchAgainstText(field.Placeholder, models.CanonicalProfileKeys)
		source = interfaces.MatchSourcePlaceholder
	}
	if profileKey == "" {
		attrs := strings.Join([]string{field.Name, field.ID, field.AriaLabel, field.Autocomplete}, " ")
		profileKey = matchAgainstText(attrs, models.CanonicalProfileKeys)
		source = interfaces.MatchSourceAttribute
	}

	if profileKey == "" {
		return "", interfaces.MatchSourceNone, handler
	}
	return profileKey, source, handler
}

// specialHandler classifies a field into one of the handlers spec §4.2
// names, independent of whether a profile key was matched.
func specialHandler(field models.FieldDescriptor) models.SpecialHandler {
	folded := tokenize(strings.Join([]string{field.Label, field.Placeholder, field.Name, field.ID, field.AriaLabel}, " "))

	if field.Type == "password" || strings.Contains(strings.ToLower(field.Tag), "password") {
		for _, tok := range confirmPasswordTokens {
			if contains(folded, tokenize(tok)) {
				return models.HandlerConfirmPassword
			}
		}
	}

	if field.Type == "checkbox" {
		for _, tok := range requiredCheckTokens {
			if contains(folded, tokenize(tok)) {
				return models.HandlerRequiredCheck
			}
		}
		for _, tok := range skipCheckTokens {
			if contains(folded, tokenize(tok)) {
				return models.HandlerSkipCheck
			}
		}
	}

	return models.HandlerNone
}

var confirmPasswordTokens = []string{
	"confirm", "verify", "retype", "re-enter", "reenter", "repeat", "password2", "pwd2",
}

var requiredCheckTokens = []string{
	"terms", "agree", "accept", "privacy", "consent", "gdpr",
}

var skipCheckTokens = []string{
	"newsletter", "subscribe", "mailinglist", "mailing list",
}
