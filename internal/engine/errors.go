// internal/engine/errors.go
package engine

import (
	"errors"
	"fmt"
)

// Phase is the session's position in the round state machine.
type Phase string

const (
	PhaseLobby         Phase = "LOBBY"
	PhaseSetup         Phase = "SETUP"
	PhaseInvestigation Phase = "INVESTIGATION"
	PhaseScoring       Phase = "SCORING"
	PhaseReveal        Phase = "REVEAL"
	PhaseDone          Phase = "DONE"
)

// PhaseError is the precondition violation raised when a command arrives in
// the wrong phase. Never retried; surfaced verbatim to the caller.
type PhaseError struct {
	Op    string
	Phase Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("cannot %s while in phase %s", e.Op, e.Phase)
}

func phaseErr(op string, p Phase) error {
	return &PhaseError{Op: op, Phase: p}
}

var (
	ErrNotEnoughPlayers    = errors.New("at least two players are required")
	ErrPreflightIncomplete = errors.New("preflight checklist is incomplete")
	ErrWorkbookNotReady    = errors.New("workbook has not been initialized")
	ErrUnknownPlayer       = errors.New("unknown player")
	ErrNotYourTurn         = errors.New("only the current-turn player may call the vault")
	ErrInsiderDisabled     = errors.New("insider twist is disabled in the config")
	ErrBadAnswer           = errors.New("answer must be YES or NO")
	ErrBadReorder          = errors.New("reorder list must be a permutation of the current players")
	ErrAnalyzerUnavailable = errors.New("question analyzer is not configured")
	ErrEmptyName           = errors.New("player name must not be empty")
	ErrBadConfig           = errors.New("config values must be positive")
)
