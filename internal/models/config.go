// internal/models/config.go
package models

// GameConfig holds the dealer-tunable session parameters. Editable only in
// LOBBY; immutable for the duration of an active round.
type GameConfig struct {
	Rounds           int    `json:"rounds"`
	InvestigationSec int    `json:"investigationSec"`
	ScoringSec       int    `json:"scoringSec"`
	VaultStart       int    `json:"vaultStart"`
	InsiderEnabled   bool   `json:"insiderEnabled"`
	PollIntervalSec  int    `json:"pollIntervalSec"`
	WorkbookPath     string `json:"workbookPath"`
	WriteAcks        bool   `json:"writeAcks"`
}

// DefaultGameConfig returns the stock session parameters.
func DefaultGameConfig(workbookPath string) GameConfig {
	return GameConfig{
		Rounds:           5,
		InvestigationSec: 300,
		ScoringSec:       120,
		VaultStart:       4,
		InsiderEnabled:   false,
		PollIntervalSec:  5,
		WorkbookPath:     workbookPath,
		WriteAcks:        true,
	}
}
