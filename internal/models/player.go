// internal/models/player.go
package models

import (
	"github.com/google/uuid"
)

// Team identifies one of the two scoring teams.
type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

// Player is a seated participant. Seat indices are always a dense, unique
// permutation of 0..n-1. SheetName is the player's derived workbook sheet,
// assigned by the workbook adapter at initialization.
type Player struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Team       Team      `json:"team"`
	Seat       int       `json:"seat"`
	SheetName  string    `json:"sheetName,omitempty"`
	LastAction string    `json:"lastAction,omitempty"`
	Demo       bool      `json:"demo,omitempty"`
}
