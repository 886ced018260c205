// internal/engine/demo.go
package engine

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/hshokrig/chicken-vault/internal/models"
	"github.com/hshokrig/chicken-vault/internal/workbook"
)

var demoQuestions = []string{
	"Is the card red?",
	"Is it a face card?",
	"Is the value higher than seven?",
}

var demoNames = []string{"Demo Ava", "Demo Ben", "Demo Cleo"}

// RunDemo plays one abbreviated scripted round so the dealer can preview the
// flow without real players: shortened timers, a synthetic question log, and
// simulated submissions written through the workbook adapter. LOBBY only; the
// demo ends in DONE, from where StartRealGame restores the real config.
func (s *Session) RunDemo() (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return models.Snapshot{}, phaseErr("run demo", s.phase)
	}

	s.demoSavedCfg = s.cfg
	s.cfg.Rounds = 1
	s.cfg.InvestigationSec = 8
	s.cfg.ScoringSec = 20
	s.cfg.PollIntervalSec = 1

	if len(s.players) < 2 {
		for i, name := range demoNames {
			team := models.TeamA
			if i%2 == 1 {
				team = models.TeamB
			}
			s.players = append(s.players, &models.Player{
				ID:   uuid.New(),
				Name: name,
				Team: team,
				Seat: len(s.players),
				Demo: true,
			})
		}
		s.demoFabricated = true
	}

	// Demo implies the dealer accepts the file hygiene checklist for the dry run.
	savedPreflight := s.preflight
	s.preflight = [2]bool{true, true}
	if err := s.initializeWorkbookLocked(); err != nil {
		s.cfg = s.demoSavedCfg
		s.preflight = savedPreflight
		if s.demoFabricated {
			s.removeDemoPlayersLocked()
			s.demoFabricated = false
		}
		return models.Snapshot{}, err
	}

	s.demoActive = true
	s.totals = models.TeamTotals{}
	s.history = nil
	s.round = nil
	s.createRoundLocked(1)
	s.phase = PhaseSetup
	s.recordActionLocked("dealer", "demo_start", nil)

	s.afterLocked(500*time.Millisecond, func() {
		if s.phase == PhaseSetup {
			s.startInvestigationLocked()
			s.notifyLocked()
		}
	})
	for i, q := range demoQuestions {
		question := q
		s.afterLocked(time.Duration(i+2)*time.Second, func() {
			if s.phase != PhaseInvestigation {
				return
			}
			answer := "NO"
			if s.rnd.Intn(2) == 0 {
				answer = "YES"
			}
			if err := s.resolveQuestionLocked(question, answer); err == nil {
				s.notifyLocked()
			}
		})
	}
	s.afterLocked(6*time.Second, func() {
		if s.phase == PhaseInvestigation {
			s.enterScoringLocked(models.AutoCaller)
		}
	})

	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// demoAdvanceLocked drives REVEAL -> DONE once the demo round is finalized.
func (s *Session) demoAdvanceLocked() {
	s.cancelTimersLocked()
	s.phase = PhaseDone
	s.recordActionLocked("dealer", "demo_done", nil)
	s.notifyLocked()
}

// writeDemoSubmissions simulates players filling in their rows shortly after
// scoring opens; the regular poll loop then picks them up like any other edit.
func (s *Session) writeDemoSubmissions(players []models.Player, round int, code string) {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	levels := []string{"SAFE", "MEDIUM", "BOLD"}
	guesses := map[string][]string{
		"SAFE":   {"RED", "BLACK"},
		"MEDIUM": {"H", "D", "C", "S"},
		"BOLD":   {"QD", "7S", "AH", "KC", "10D"},
	}
	for _, p := range players {
		level := levels[rnd.Intn(len(levels))]
		opts := guesses[level]
		guess := opts[rnd.Intn(len(opts))]
		if err := s.wb.WriteSubmission(p, round, code, level, guess); err != nil {
			s.mu.Lock()
			s.alerts.push(workbook.LockAlert("demo_submission", err))
			s.mu.Unlock()
			return
		}
	}
}
