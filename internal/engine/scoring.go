// internal/engine/scoring.go
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hshokrig/chicken-vault/internal/cards"
	"github.com/hshokrig/chicken-vault/internal/models"
	"github.com/hshokrig/chicken-vault/internal/workbook"
)

// Finalize reasons recorded on the round summary.
const (
	FinalizeAllSubmitted = "all_submitted"
	FinalizeTimer        = "timer"
)

// enterScoringLocked performs the INVESTIGATION -> SCORING transition:
// generates the round code, resets the per-player trackers, arms the scoring
// countdown and the poll loop, and asynchronously writes the round markers
// into the workbook so players see the round is open.
func (s *Session) enterScoringLocked(actor string) {
	s.cancelTimersLocked()

	r := s.round
	r.VaultCaller = actor
	r.RoundCode = s.roundCodeLocked(r.Number)
	r.Submissions = make(map[uuid.UUID]models.Submission)
	r.Trackers = make(map[uuid.UUID]*models.SubmissionTracker, len(s.players))
	for _, p := range s.players {
		r.Trackers[p.ID] = &models.SubmissionTracker{}
	}
	if actor != models.AutoCaller {
		if id, err := uuid.Parse(actor); err == nil {
			if caller := s.playerByID(id); caller != nil {
				caller.LastAction = "called the vault"
			}
		}
	}

	d := time.Duration(s.cfg.ScoringSec) * time.Second
	r.ScoringDeadline = s.Clock.Now().Add(d)
	s.finalizing = false
	s.afterLocked(d, func() {
		s.finalizeScoringLocked(FinalizeTimer)
	})
	s.startPollingLocked()
	s.phase = PhaseScoring

	// Marker writes go through the same retry discipline as everything else;
	// failures surface as a lock alert rather than blocking the transition.
	players := s.playersCopyLocked()
	num, code := r.Number, r.RoundCode
	go func() {
		if err := s.wb.PrepareScoringRound(players, num, code); err != nil {
			s.mu.Lock()
			s.alerts.push(workbook.LockAlert("prepare_round", err))
			s.notifyLocked()
			s.mu.Unlock()
		}
	}()
	if s.demoActive {
		go s.writeDemoSubmissions(players, num, code)
	}

	s.recordActionLocked(actor, "vault_called", map[string]interface{}{
		"round": num,
		"vault": r.VaultValue,
		"code":  code,
	})
	s.logger.WithField("round", num).WithField("code", code).Info("scoring open")
	s.notifyLocked()
}

// FinalizeScoring computes points and moves SCORING -> REVEAL. Idempotent: a
// re-entrant call while a finalize is already in progress, or after the phase
// has left SCORING, is a no-op.
func (s *Session) FinalizeScoring(reason string) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeScoringLocked(reason)
	return s.snapshotLocked(), nil
}

func (s *Session) finalizeScoringLocked(reason string) {
	if s.phase != PhaseScoring || s.finalizing {
		return
	}
	s.finalizing = true
	s.cancelTimersLocked()

	summary := s.computeResultLocked(reason)
	s.round.Result = &summary
	s.totals.Add(summary.TeamPoints)
	s.history = append(s.history, summary)
	s.phase = PhaseReveal

	if s.Rounds != nil {
		sid := s.ID
		totals := s.totals
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Rounds.RecordRound(ctx, sid, summary, totals); err != nil {
				s.logger.Warnf("round history persist failed: %v", err)
			}
		}()
	}
	s.recordActionLocked("dealer", "round_finalized", map[string]interface{}{
		"round":  summary.Round,
		"reason": reason,
		"teamA":  summary.TeamPoints[models.TeamA],
		"teamB":  summary.TeamPoints[models.TeamB],
	})
	s.logger.WithField("round", summary.Round).WithField("reason", reason).Info("round finalized")

	if s.demoActive {
		s.afterLocked(2*time.Second, func() {
			if s.phase == PhaseReveal {
				s.demoAdvanceLocked()
			}
		})
	}
	s.notifyLocked()
}

// computeResultLocked applies the scoring formula once per player: the
// level-based base score for submitters, zero for non-submitters, then the
// call-vault risk/reward modifier (+1 if the caller's own base was positive,
// -1 otherwise) on top.
func (s *Session) computeResultLocked(reason string) models.RoundSummary {
	r := s.round
	points := make(map[uuid.UUID]int, len(s.players))
	teamPoints := map[models.Team]int{models.TeamA: 0, models.TeamB: 0}

	for _, p := range s.players {
		base := 0
		if sub, ok := r.Submissions[p.ID]; ok {
			base = cards.BaseScore(sub.Level, sub.Guess, s.secret.card, r.VaultValue)
		}
		pts := base
		if r.VaultCaller == p.ID.String() {
			if base > 0 {
				pts++
			} else {
				pts--
			}
		}
		points[p.ID] = pts
		teamPoints[p.Team] += pts
	}

	insider := ""
	if s.cfg.InsiderEnabled && s.secret.insider != uuid.Nil {
		insider = s.secret.insider.String()
	}

	return models.RoundSummary{
		Round:          r.Number,
		SecretCard:     s.secret.card.Code(),
		Insider:        insider,
		VaultValue:     r.VaultValue,
		VaultCaller:    r.VaultCaller,
		PointsByPlayer: points,
		TeamPoints:     teamPoints,
		FinalizedAt:    s.Clock.Now(),
		Reason:         reason,
	}
}
