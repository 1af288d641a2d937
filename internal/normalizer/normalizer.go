// Package normalizer implements the Profile Normalizer (spec §4.1, C6): it
// flattens a free-form profile record into the canonical profile-key set
// the rest of the pipeline consumes.
package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/formflow/automation/internal/models"
)

var digitsOnly = regexp.MustCompile(`[^0-9]`)
var isoDateRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// Defaults are applied only when the corresponding key is missing from the
// input. Callers may override via Config.
type Defaults struct {
	Country  string
	Title    string
	Password string
}

// DefaultDefaults mirrors spec §4.1's defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Country:  "United States",
		Title:    "Mr",
		Password: "SecurePass123!",
	}
}

// Normalizer implements interfaces.ProfileNormalizer.
type Normalizer struct {
	defaults Defaults
}

// New creates a Normalizer with the given defaults.
func New(defaults Defaults) *Normalizer {
	return &Normalizer{defaults: defaults}
}

// Normalize flattens raw into the canonical profile-key mapping, applying
// defaults only for missing keys and recording which keys were defaulted
// (spec §4.1 "observable defaulted marker"). Normalization never fails
// (spec §4.1 "Failure modes"); malformed dates simply yield absent dob_*
// keys. Implements interfaces.ProfileNormalizer.
func (n *Normalizer) Normalize(raw map[string]interface{}) (values map[string]string, defaulted map[string]bool) {
	return n.normalize(raw)
}

func (n *Normalizer) normalize(raw map[string]interface{}) (map[string]string, map[string]bool) {
	values := map[string]string{}
	defaulted := map[string]bool{}

	// Flatten one level of nesting: promote a nested object whose keys
	// match canonical keys, with source (top-level) keys taking precedence.
	flat := map[string]interface{}{}
	for k, v := range raw {
		if nested, ok := v.(map[string]interface{}); ok {
			for nk, nv := range nested {
				if models.IsCanonicalProfileKey(nk) {
					if _, exists := flat[nk]; !exists {
						flat[nk] = nv
					}
				}
			}
			continue
		}
		flat[k] = v
	}
	for k, v := range raw {
		if _, ok := v.(map[string]interface{}); ok {
			continue
		}
		flat[k] = v
	}

	for _, key := range models.CanonicalProfileKeys {
		if v, ok := flat[key]; ok {
			if s := toString(v); s != "" {
				values[key] = s
			}
		}
	}

	// Derive name.
	if values["name"] == "" {
		first, last := values["firstName"], values["lastName"]
		if first != "" || last != "" {
			values["name"] = strings.TrimSpace(first + " " + last)
		}
	}

	// Phone: extract digits; phone equals phone_raw unless an explicitly
	// formatted value was supplied.
	if raw, ok := flat["phone"]; ok {
		phoneStr := toString(raw)
		digits := digitsOnly.ReplaceAllString(phoneStr, "")
		values["phone_raw"] = digits
		if phoneStr != digits && phoneStr != "" {
			values["phone"] = phoneStr // explicit formatted value
		} else {
			values["phone"] = digits
		}
	} else if raw, ok := flat["phone_raw"]; ok {
		digits := digitsOnly.ReplaceAllString(toString(raw), "")
		values["phone_raw"] = digits
		values["phone"] = digits
	}

	// Date of birth.
	if dob, ok := flat["dob"]; ok {
		dobStr := toString(dob)
		if m := isoDateRe.FindStringSubmatch(dobStr); m != nil {
			year, yerr := strconv.Atoi(m[1])
			month, merr := strconv.Atoi(m[2])
			day, derr := strconv.Atoi(m[3])
			if yerr == nil && merr == nil && derr == nil &&
				year > 0 && month >= 1 && month <= 12 && day >= 1 && day <= 31 {
				values["dob"] = dobStr
				values["dob_year"] = m[1]
				values["dob_month"] = m[2]
				values["dob_day"] = m[3]
				values["dob_year_int"] = strconv.Itoa(year)
				values["dob_month_int"] = strconv.Itoa(month)
				values["dob_day_int"] = strconv.Itoa(day)
			}
			// malformed: leave dob_* absent, no error
		}
	}

	// Defaults, applied only when missing.
	applyDefault := func(key, def string) {
		if values[key] == "" && def != "" {
			values[key] = def
			defaulted[key] = true
		}
	}
	applyDefault("country", n.defaults.Country)
	applyDefault("title", n.defaults.Title)
	applyDefault("password", n.defaults.Password)

	return values, defaulted
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	}
}
