package models

// FieldKind is the tagged enum spec §9 mandates in place of the source's
// duck-typed field descriptors.
type FieldKind string

const (
	FieldKindText     FieldKind = "text"
	FieldKindEmail    FieldKind = "email"
	FieldKindPassword FieldKind = "password"
	FieldKindSelect   FieldKind = "select"
	FieldKindCheckbox FieldKind = "checkbox"
	FieldKindRadio    FieldKind = "radio"
	FieldKindDOBDay   FieldKind = "dob_day"
	FieldKindDOBMonth FieldKind = "dob_month"
	FieldKindDOBYear  FieldKind = "dob_year"
	FieldKindCaptcha  FieldKind = "captcha"
	FieldKindSubmit   FieldKind = "submit"
	FieldKindOther    FieldKind = "other"
)

// SpecialHandler annotates a resolved field with the matching rules from
// spec §4.2's "special handlers" pass.
type SpecialHandler string

const (
	HandlerNone             SpecialHandler = ""
	HandlerConfirmPassword  SpecialHandler = "confirm-password"
	HandlerRequiredCheck    SpecialHandler = "required-check"
	HandlerSkipCheck        SpecialHandler = "skip-check"
)

// FieldDescriptor is the canonical record the Browser Capability's
// query_fields() returns for one observed form control (spec §6).
type FieldDescriptor struct {
	Selector     string   `json:"selector"`
	Tag          string   `json:"tag"`  // "input", "select", "textarea", "button"
	Type         string   `json:"type"` // input[type], e.g. "email", "checkbox"
	Name         string   `json:"name"`
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	Placeholder  string   `json:"placeholder"`
	AriaLabel    string   `json:"aria_label"`
	Autocomplete string   `json:"autocomplete"`
	Options      []string `json:"options,omitempty"` // select option texts/values
	Visible      bool     `json:"visible"`
	Disabled     bool     `json:"disabled"`
	Hidden       bool     `json:"hidden"`
}

// PlanSource records which resolver layer produced a FieldPlanEntry (spec
// §4.7, GLOSSARY "Plan source").
type PlanSource string

const (
	PlanSourceCached  PlanSource = "cached"
	PlanSourceAI      PlanSource = "ai"
	PlanSourcePattern PlanSource = "pattern"
)

// FieldPlanEntry is one resolved (selector -> profile_key) mapping in a
// field plan, the unit both DomainMapping and the AI Analyzer Client
// exchange (spec §4.3, §4.7, GLOSSARY "Field plan").
type FieldPlanEntry struct {
	Selector    string         `json:"selector"`
	ProfileKey  string         `json:"profile_field"`
	Kind        FieldKind      `json:"field_kind"`
	Confidence  float64        `json:"confidence"`
	Handler     SpecialHandler `json:"handler,omitempty"`
}
