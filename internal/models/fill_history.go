package models

import "time"

// FillHistoryEntry is an append-only record of one job's outcome.
// Insertion is idempotent on JobID (spec §3, P3).
type FillHistoryEntry struct {
	JobID        string     `json:"job_id"`
	SiteID       string     `json:"site_id,omitempty"`
	ProfileID    string     `json:"profile_id"`
	URL          string     `json:"url"`
	Success      bool       `json:"success"`
	FieldsFilled int        `json:"fields_filled"`
	ErrorKind    *ErrorKind `json:"error_kind,omitempty"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time  `json:"created_at"`
}
