package pipeline

import (
	"strings"

	"github.com/formflow/automation/internal/models"
)

// findSubmitControl locates the form's submit control: an explicit
// type="submit" button/input first, falling back to any button/input
// whose visible text contains one of the configured submit phrases (spec
// §4.4 "submitting"). Returns "" when nothing matches.
func findSubmitControl(fields []models.FieldDescriptor, phrases []string) string {
	for _, f := range fields {
		if !f.Visible || f.Disabled || f.Hidden {
			continue
		}
		if f.Type == "submit" {
			return f.Selector
		}
	}

	for _, f := range fields {
		if !f.Visible || f.Disabled || f.Hidden {
			continue
		}
		if f.Tag != "button" && f.Type != "button" {
			continue
		}
		text := strings.ToLower(f.Label + " " + f.AriaLabel + " " + f.Placeholder)
		for _, phrase := range phrases {
			if strings.Contains(text, phrase) {
				return f.Selector
			}
		}
	}
	return ""
}
