// internal/models/alert.go
package models

import "time"

// AlertKind classifies workbook diagnostics surfaced to the dealer.
type AlertKind string

const (
	AlertPathMissing       AlertKind = "path_missing"
	AlertNewerDuplicate    AlertKind = "newer_duplicate"
	AlertSyncStale         AlertKind = "sync_stale"
	AlertLocked            AlertKind = "locked"
	AlertParseRetry        AlertKind = "parse_retry_succeeded"
	AlertInvalidSubmission AlertKind = "invalid_submission"
)

// Alert is a transient, non-blocking workbook diagnostic. Alerts are
// deduplicated by ID, capped to the most recent 20, and cleared whenever the
// workbook is successfully re-initialized.
type Alert struct {
	ID         string    `json:"id"`
	Kind       AlertKind `json:"kind"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
	Candidates []string  `json:"candidates,omitempty"`
}
