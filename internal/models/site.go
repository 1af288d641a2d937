package models

import "time"

// SiteStatus is the outcome of a Site's most recent pipeline run.
type SiteStatus string

const (
	SiteStatusPending SiteStatus = "pending"
	SiteStatusSuccess SiteStatus = "success"
	SiteStatusFailed  SiteStatus = "failed"
)

// Site is a saved target URL the user can repeatedly run the pipeline
// against. last_* fields and CachedPlan are written only by the Pipeline
// Executor on completion; everything else is user-managed.
type Site struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`

	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastStatus     SiteStatus `json:"last_status"`
	LastFieldsFilled int      `json:"last_fields_filled"`

	// CachedPlan is an optional last-known-good field plan, useful for UI
	// previews; the Field Resolver always consults DomainMappingRepo, not
	// this field, for actual execution.
	CachedPlan []FieldPlanEntry `json:"cached_plan,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
