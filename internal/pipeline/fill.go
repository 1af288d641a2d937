package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

// fillContext bundles the read-only state the per-kind fill strategies need:
// the live DOM snapshot (for option/label lookups the resolved plan entry
// alone does not carry) and the profile's canonical values.
type fillContext struct {
	session      interfaces.BrowserSession
	bySelector   map[string]models.FieldDescriptor
	byName       map[string][]models.FieldDescriptor
	profile      *models.Profile
	values       map[string]string
	fieldTimeout time.Duration
}

// fillEntry applies one resolved field plan entry by kind (spec §4.4
// "filling"). primaryPassword tracks the first non-confirm password value
// filled this job so a confirm-password field can reuse it verbatim.
func fillEntry(ctx context.Context, fc *fillContext, entry models.FieldPlanEntry, primaryPassword *string) error {
	value := fc.values[entry.ProfileKey]

	switch entry.Kind {
	case models.FieldKindText, models.FieldKindEmail:
		if value == "" {
			return fmt.Errorf("no profile value for %q", entry.ProfileKey)
		}
		return fc.session.Type(ctx, entry.Selector, value, fc.fieldTimeout)

	case models.FieldKindPassword:
		if entry.Handler == models.HandlerConfirmPassword && *primaryPassword != "" {
			value = *primaryPassword
		}
		if value == "" {
			return fmt.Errorf("no password value available for %q", entry.Selector)
		}
		if err := fc.session.Type(ctx, entry.Selector, value, fc.fieldTimeout); err != nil {
			return err
		}
		if entry.Handler != models.HandlerConfirmPassword && *primaryPassword == "" {
			*primaryPassword = value
		}
		return nil

	case models.FieldKindSelect:
		return fillSelect(ctx, fc, entry, value)

	case models.FieldKindCheckbox:
		switch entry.Handler {
		case models.HandlerRequiredCheck:
			return fc.session.Click(ctx, entry.Selector, fc.fieldTimeout)
		case models.HandlerSkipCheck:
			return nil
		default:
			return nil
		}

	case models.FieldKindRadio:
		return fillRadio(ctx, fc, entry, value)

	case models.FieldKindDOBDay, models.FieldKindDOBMonth, models.FieldKindDOBYear:
		return fillDOB(ctx, fc, entry, value)

	default:
		return nil
	}
}

// fillSelect tries, in order, select-by-visible-text, select-by-value, and
// a fuzzy contains match; for the country field it also tries ISO-2/ISO-3
// codes from a fixed table.
func fillSelect(ctx context.Context, fc *fillContext, entry models.FieldPlanEntry, value string) error {
	candidates := []string{value}
	if entry.ProfileKey == "country" {
		candidates = countryCandidates(value)
	}

	var lastErr error
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if err := fc.session.Select(ctx, entry.Selector, candidate, interfaces.SelectByVisibleText); err == nil {
			return nil
		}
		if err := fc.session.Select(ctx, entry.Selector, candidate, interfaces.SelectByValue); err == nil {
			return nil
		}
		lastErr = fc.session.Select(ctx, entry.Selector, candidate, interfaces.SelectByFuzzyText)
		if lastErr == nil {
			return nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate value to select for %q", entry.Selector)
	}
	return lastErr
}

// fillRadio finds the option in entry.Selector's radio group whose label
// fuzzy-matches value and clicks it.
func fillRadio(ctx context.Context, fc *fillContext, entry models.FieldPlanEntry, value string) error {
	if value == "" {
		return fmt.Errorf("no profile value for %q", entry.ProfileKey)
	}

	desc, ok := fc.bySelector[entry.Selector]
	if !ok || desc.Name == "" {
		return fc.session.Click(ctx, entry.Selector, fc.fieldTimeout)
	}

	group := fc.byName[desc.Name]
	best := entry.Selector
	bestScore := -1
	target := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range group {
		if candidate.Type != "radio" {
			continue
		}
		score := fuzzyScore(target, strings.ToLower(candidate.Label))
		if score > bestScore {
			bestScore = score
			best = candidate.Selector
		}
	}
	return fc.session.Click(ctx, best, fc.fieldTimeout)
}

// fillDOB fills a date-of-birth sub-field by trying, in order, the
// zero-padded string form and the plain integer form against whatever the
// control accepts (spec §4.4 "pick the integer or zero-padded form by
// trial against available options").
func fillDOB(ctx context.Context, fc *fillContext, entry models.FieldPlanEntry, paddedValue string) error {
	intValue := dobIntValue(fc.profile, entry.Kind)
	candidates := dedupNonEmpty(paddedValue, intValue)
	if len(candidates) == 0 {
		return fmt.Errorf("no dob value for %q", entry.ProfileKey)
	}

	desc, isSelect := fc.bySelector[entry.Selector]
	isSelect = isSelect && desc.Tag == "select"

	var lastErr error
	for _, candidate := range candidates {
		if isSelect {
			if err := fc.session.Select(ctx, entry.Selector, candidate, interfaces.SelectByValue); err == nil {
				return nil
			}
			lastErr = fc.session.Select(ctx, entry.Selector, candidate, interfaces.SelectByFuzzyText)
			if lastErr == nil {
				return nil
			}
			continue
		}
		lastErr = fc.session.Type(ctx, entry.Selector, candidate, fc.fieldTimeout)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func dobIntValue(profile *models.Profile, kind models.FieldKind) string {
	if profile == nil {
		return ""
	}
	switch kind {
	case models.FieldKindDOBDay:
		if profile.DOBDayInt > 0 {
			return strconv.Itoa(profile.DOBDayInt)
		}
	case models.FieldKindDOBMonth:
		if profile.DOBMonthInt > 0 {
			return strconv.Itoa(profile.DOBMonthInt)
		}
	case models.FieldKindDOBYear:
		if profile.DOBYearInt > 0 {
			return strconv.Itoa(profile.DOBYearInt)
		}
	}
	return ""
}

func dedupNonEmpty(values ...string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// fuzzyScore is a small case-insensitive containment heuristic: it rewards
// a longer common run between label and target over an exact substring
// hit in either direction. Good enough to pick "Male" over "Female" when
// matching a "male" profile value, without pulling in a full edit-distance
// dependency for one field kind.
func fuzzyScore(target, label string) int {
	if target == "" || label == "" {
		return 0
	}
	if target == label {
		return 1000
	}
	if strings.Contains(label, target) {
		return 500 + len(target)
	}
	if strings.Contains(target, label) {
		return 400 + len(label)
	}
	return longestCommonSubstring(target, label)
}

func longestCommonSubstring(a, b string) int {
	best := 0
	for i := range a {
		for j := range b {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > best {
				best = k
			}
		}
	}
	return best
}
