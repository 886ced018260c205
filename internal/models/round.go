// internal/models/round.go
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hshokrig/chicken-vault/internal/cards"
)

// AutoCaller marks a vault call triggered by the investigation timer rather
// than a seated player.
const AutoCaller = "AUTO"

// QuestionEntry is one resolved investigation question.
type QuestionEntry struct {
	Seat     int       `json:"seat"`
	PlayerID uuid.UUID `json:"playerId"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"` // YES or NO
	AskedAt  time.Time `json:"askedAt"`
}

// Submission is an accepted per-player guess.
type Submission struct {
	Level       cards.Level `json:"level"`
	Guess       string      `json:"guess"`
	SubmittedAt time.Time   `json:"submittedAt"`
}

// SubmissionTracker is the per-player reconciliation state for the scoring
// poll loop: whether a valid submission has been accepted, when the player's
// row was last seen changing, and the latest validation message if the row
// was rejected.
type SubmissionTracker struct {
	Submitted bool      `json:"submitted"`
	LastSeen  time.Time `json:"lastSeen,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// RoundState is the per-round mutable record. Created fresh each round and
// reset on phase re-entry to SETUP or on game reset. The secret card and
// insider identity are deliberately NOT part of this struct; they live in
// engine-internal state and never reach the public snapshot.
type RoundState struct {
	Number                int                               `json:"number"` // 1-based
	DealerSeat            int                               `json:"dealerSeat"`
	TurnSeat              int                               `json:"turnSeat"`
	VaultValue            int                               `json:"vaultValue"`
	VaultCaller           string                            `json:"vaultCaller,omitempty"` // player id, AUTO, or empty
	Questions             []QuestionEntry                   `json:"questions"`
	RoundCode             string                            `json:"roundCode,omitempty"`
	InvestigationDeadline time.Time                         `json:"investigationDeadline,omitempty"`
	ScoringDeadline       time.Time                         `json:"scoringDeadline,omitempty"`
	Submissions           map[uuid.UUID]Submission          `json:"submissions"`
	Trackers              map[uuid.UUID]*SubmissionTracker  `json:"trackers"`
	Result                *RoundSummary                     `json:"result,omitempty"`
}

// RoundSummary is the finalized outcome of one round. The secret card and
// insider become public here; before finalization they exist only in
// engine-internal state.
type RoundSummary struct {
	Round          int               `json:"round"`
	SecretCard     string            `json:"secretCard"`
	Insider        string            `json:"insider,omitempty"` // player id, when the twist is on
	VaultValue     int               `json:"vaultValue"`
	VaultCaller    string            `json:"vaultCaller,omitempty"`
	PointsByPlayer map[uuid.UUID]int `json:"pointsByPlayer"`
	TeamPoints     map[Team]int      `json:"teamPoints"`
	FinalizedAt    time.Time         `json:"finalizedAt"`
	Reason         string            `json:"reason"` // all_submitted or timer
}

// TeamTotals accumulates running team scores across the game's history.
type TeamTotals struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Add folds a round's team points into the running totals.
func (t *TeamTotals) Add(points map[Team]int) {
	t.A += points[TeamA]
	t.B += points[TeamB]
}
