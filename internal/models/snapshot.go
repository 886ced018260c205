// internal/models/snapshot.go
package models

// WorkbookStatus summarizes the adapter's view of the shared file for the UI.
type WorkbookStatus struct {
	Path        string  `json:"path"`
	Initialized bool    `json:"initialized"`
	Alerts      []Alert `json:"alerts"`
}

// Snapshot is the immutable state view returned by every mutating command and
// pushed to websocket subscribers. It never contains the secret card or the
// insider identity.
type Snapshot struct {
	Phase      string         `json:"phase"`
	Config     GameConfig     `json:"config"`
	Preflight  [2]bool        `json:"preflight"`
	Players    []Player       `json:"players"` // seat-sorted
	Round      *RoundState    `json:"round,omitempty"`
	Totals     TeamTotals     `json:"totals"`
	History    []RoundSummary `json:"history"`
	Workbook   WorkbookStatus `json:"workbook"`
	DemoActive bool           `json:"demoActive"`
}
