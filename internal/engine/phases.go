// internal/engine/phases.go
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hshokrig/chicken-vault/internal/cards"
	"github.com/hshokrig/chicken-vault/internal/models"
)

// roundCodeAlphabet skips easily-confused glyphs (0/O, 1/I/L) since players
// retype the code into the spreadsheet.
const roundCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func (s *Session) roundCodeLocked(round int) string {
	token := make([]byte, 4)
	for i := range token {
		token[i] = roundCodeAlphabet[s.rnd.Intn(len(roundCodeAlphabet))]
	}
	return fmt.Sprintf("R%d-%s", round, token)
}

// pickDealerSeatLocked draws a uniform-random dealer seat, excluding the
// previous round's dealer when there are at least two seats so the same
// player never deals twice in a row.
func (s *Session) pickDealerSeatLocked(prevDealer int) int {
	n := len(s.players)
	if n == 1 {
		return 0
	}
	for {
		seat := s.rnd.Intn(n)
		if seat != prevDealer {
			return seat
		}
	}
}

// createRoundLocked builds a fresh RoundState. Dealer and turn seats derive
// from the prior round; per-round secrets start unset.
func (s *Session) createRoundLocked(number int) {
	prevDealer := -1
	if s.round != nil {
		prevDealer = s.round.DealerSeat
	}
	dealer := s.pickDealerSeatLocked(prevDealer)
	s.round = &models.RoundState{
		Number:      number,
		DealerSeat:  dealer,
		TurnSeat:    SeatAfter(dealer, len(s.players)),
		VaultValue:  s.cfg.VaultStart,
		Questions:   []models.QuestionEntry{},
		Submissions: make(map[uuid.UUID]models.Submission),
		Trackers:    make(map[uuid.UUID]*models.SubmissionTracker),
	}
	s.secret = &roundSecret{}
	s.finalizing = false
	for _, p := range s.players {
		p.LastAction = ""
	}
}

// StartGame moves LOBBY -> SETUP: resets team totals and history, and creates
// round 1. Requires at least two players, the completed preflight checklist,
// and an initialized workbook.
func (s *Session) StartGame() (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return models.Snapshot{}, phaseErr("start game", s.phase)
	}
	if len(s.players) < 2 {
		return models.Snapshot{}, ErrNotEnoughPlayers
	}
	if !s.preflight[0] || !s.preflight[1] {
		return models.Snapshot{}, ErrPreflightIncomplete
	}
	if !s.wbReady {
		return models.Snapshot{}, ErrWorkbookNotReady
	}
	s.cancelTimersLocked()
	s.totals = models.TeamTotals{}
	s.history = nil
	s.round = nil
	s.createRoundLocked(1)
	s.phase = PhaseSetup
	s.recordActionLocked("dealer", "game_start", map[string]interface{}{"players": len(s.players)})
	s.logger.WithField("players", len(s.players)).Info("game started")
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// SetSecretCard is the manual override for the secret card. SETUP only.
func (s *Session) SetSecretCard(code string) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseSetup {
		return models.Snapshot{}, phaseErr("set secret card", s.phase)
	}
	card, err := cards.Parse(code)
	if err != nil {
		return models.Snapshot{}, err
	}
	s.secret.card = card
	s.secret.cardSet = true
	s.recordActionLocked("dealer", "secret_card_set", nil)
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// PickInsider is the manual override for the insider. SETUP only, and only
// when the insider twist is enabled.
func (s *Session) PickInsider(id uuid.UUID) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseSetup {
		return models.Snapshot{}, phaseErr("pick insider", s.phase)
	}
	if !s.cfg.InsiderEnabled {
		return models.Snapshot{}, ErrInsiderDisabled
	}
	if s.playerByID(id) == nil {
		return models.Snapshot{}, ErrUnknownPlayer
	}
	s.secret.insider = id
	s.recordActionLocked("dealer", "insider_set", nil)
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// StartInvestigation moves SETUP -> INVESTIGATION: auto-selects any unset
// secrets, points the turn at the seat clockwise of the dealer, and arms the
// investigation countdown that auto-calls the vault on expiry.
func (s *Session) StartInvestigation() (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseSetup {
		return models.Snapshot{}, phaseErr("start investigation", s.phase)
	}
	s.startInvestigationLocked()
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

func (s *Session) startInvestigationLocked() {
	if !s.secret.cardSet {
		s.secret.card = cards.Random(s.rnd)
		s.secret.cardSet = true
	}
	if s.cfg.InsiderEnabled && s.secret.insider == uuid.Nil && len(s.players) > 0 {
		s.secret.insider = s.players[s.rnd.Intn(len(s.players))].ID
	}
	s.cancelTimersLocked()
	s.round.TurnSeat = SeatAfter(s.round.DealerSeat, len(s.players))
	d := time.Duration(s.cfg.InvestigationSec) * time.Second
	s.round.InvestigationDeadline = s.Clock.Now().Add(d)
	s.afterLocked(d, func() {
		if s.phase == PhaseInvestigation {
			s.enterScoringLocked(models.AutoCaller)
		}
	})
	s.phase = PhaseInvestigation
	s.recordActionLocked("dealer", "investigation_start", map[string]interface{}{"round": s.round.Number})
}

// ResolveQuestion records a dealer-entered YES/NO answer for the current-turn
// player's question: appends to the log, bumps the vault by exactly 1, and
// advances the turn one seat.
func (s *Session) ResolveQuestion(question, answer string) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInvestigation {
		return models.Snapshot{}, phaseErr("resolve question", s.phase)
	}
	if err := s.resolveQuestionLocked(question, answer); err != nil {
		return models.Snapshot{}, err
	}
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

func (s *Session) resolveQuestionLocked(question, answer string) error {
	answer = strings.ToUpper(strings.TrimSpace(answer))
	if answer != "YES" && answer != "NO" {
		return ErrBadAnswer
	}
	asker := s.playerAtSeat(s.round.TurnSeat)
	if asker == nil {
		return ErrUnknownPlayer
	}
	s.round.Questions = append(s.round.Questions, models.QuestionEntry{
		Seat:     asker.Seat,
		PlayerID: asker.ID,
		Question: question,
		Answer:   answer,
		AskedAt:  s.Clock.Now(),
	})
	s.round.VaultValue++
	asker.LastAction = fmt.Sprintf("asked: %s -> %s", question, answer)
	s.round.TurnSeat = SeatAfter(s.round.TurnSeat, len(s.players))
	s.recordActionLocked(asker.ID.String(), "question_resolved", map[string]interface{}{
		"answer": answer,
		"vault":  s.round.VaultValue,
	})
	return nil
}

// CallVault moves INVESTIGATION -> SCORING. Only the current-turn player may
// call, or AutoCaller when the investigation timer expires.
func (s *Session) CallVault(actor string) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInvestigation {
		return models.Snapshot{}, phaseErr("call vault", s.phase)
	}
	if actor != models.AutoCaller {
		id, err := uuid.Parse(actor)
		if err != nil {
			return models.Snapshot{}, ErrUnknownPlayer
		}
		caller := s.playerByID(id)
		if caller == nil {
			return models.Snapshot{}, ErrUnknownPlayer
		}
		if caller.Seat != s.round.TurnSeat {
			return models.Snapshot{}, ErrNotYourTurn
		}
	}
	s.enterScoringLocked(actor)
	return s.snapshotLocked(), nil
}

// NextRound moves REVEAL -> SETUP for the next round, or REVEAL -> DONE once
// the configured round count is reached.
func (s *Session) NextRound() (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReveal {
		return models.Snapshot{}, phaseErr("advance round", s.phase)
	}
	s.cancelTimersLocked()
	if s.round.Number >= s.cfg.Rounds {
		s.phase = PhaseDone
		s.recordActionLocked("dealer", "game_done", nil)
	} else {
		s.createRoundLocked(s.round.Number + 1)
		s.phase = PhaseSetup
		s.recordActionLocked("dealer", "round_next", map[string]interface{}{"round": s.round.Number})
	}
	s.notifyLocked()
	return s.snapshotLocked(), nil
}

// StartRealGame leaves DONE after a demo run: clears demo players and scores,
// re-initializes the workbook for the real roster, and enters SETUP at
// round 1.
func (s *Session) StartRealGame() (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseDone {
		return models.Snapshot{}, phaseErr("start real game", s.phase)
	}
	s.cancelTimersLocked()
	if s.demoActive {
		s.cfg = s.demoSavedCfg
		s.demoActive = false
	}
	if s.demoFabricated {
		s.removeDemoPlayersLocked()
	}
	if len(s.players) < 2 {
		return models.Snapshot{}, ErrNotEnoughPlayers
	}
	if err := s.initializeWorkbookLocked(); err != nil {
		return models.Snapshot{}, err
	}
	s.totals = models.TeamTotals{}
	s.history = nil
	s.round = nil
	s.createRoundLocked(1)
	s.phase = PhaseSetup
	s.recordActionLocked("dealer", "real_game_start", nil)
	s.notifyLocked()
	return s.snapshotLocked(), nil
}
