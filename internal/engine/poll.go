// internal/engine/poll.go
package engine

import (
	"fmt"
	"time"

	"github.com/hshokrig/chicken-vault/internal/cards"
	"github.com/hshokrig/chicken-vault/internal/models"
	"github.com/hshokrig/chicken-vault/internal/workbook"
)

// startPollingLocked arms the fixed-interval poll loop that reconciles
// player-submitted workbook edits during SCORING. The loop stops when the
// stop channel closes (any transition) and never runs two reads concurrently.
func (s *Session) startPollingLocked() {
	stop := make(chan struct{})
	s.pollStop = stop
	ticker := s.Clock.NewTicker(time.Duration(s.cfg.PollIntervalSec) * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				s.PollWorkbook()
			case <-stop:
				return
			}
		}
	}()
}

// PollWorkbook performs one reconciliation pass: detect sync anomalies, read
// the round's rows, validate them against round/identity invariants, fold
// accepted submissions into round state, and finalize once every player has a
// valid submission. Exported so a dealer can force an immediate re-check.
func (s *Session) PollWorkbook() {
	s.mu.Lock()
	if s.phase != PhaseScoring || s.finalizing || s.pollInFlight {
		s.mu.Unlock()
		return
	}
	s.pollInFlight = true
	players := s.playersCopyLocked()
	num := s.round.Number
	lastMTime := s.lastWbMTime
	s.mu.Unlock()

	// File I/O happens outside the lock; the pollInFlight guard keeps this
	// logical operation exclusive against the next tick.
	alerts := s.wb.DetectAlerts(lastMTime, true)
	snap, readErr := s.wb.ReadSnapshot(players, num)

	s.mu.Lock()
	s.pollInFlight = false
	for _, a := range alerts {
		s.alerts.push(a)
	}
	if readErr != nil {
		s.alerts.push(workbook.LockAlert("read_snapshot", readErr))
		s.notifyLocked()
		s.mu.Unlock()
		return
	}
	if snap.Retries > 0 {
		s.alerts.push(workbook.RetryAlert("read", snap.Retries))
	}
	s.lastWbMTime = snap.MTime
	if s.phase != PhaseScoring || s.round == nil || s.round.Number != num {
		// A transition happened while we were reading; drop the stale data.
		s.mu.Unlock()
		return
	}
	acks, allSubmitted := s.reconcileLocked(snap)
	writeAcks := s.cfg.WriteAcks
	s.notifyLocked()
	s.mu.Unlock()

	if writeAcks && len(acks) > 0 {
		if err := s.wb.WriteAcknowledgements(acks); err != nil {
			s.mu.Lock()
			s.alerts.push(workbook.LockAlert("write_acks", err))
			s.mu.Unlock()
		}
	}
	if allSubmitted {
		s.FinalizeScoring(FinalizeAllSubmitted)
	}
}

// reconcileLocked applies the validation policy to each player's row, in
// priority order: skip if already accepted; skip if the row is still empty;
// reject on round/code mismatch; reject on level/guess format; otherwise
// accept. Returns the acknowledgement write-backs and whether every player
// now has an accepted submission.
func (s *Session) reconcileLocked(snap *workbook.Snapshot) ([]workbook.Ack, bool) {
	r := s.round
	now := s.Clock.Now()
	var acks []workbook.Ack

	for _, p := range s.players {
		tr := r.Trackers[p.ID]
		if tr == nil {
			tr = &models.SubmissionTracker{}
			r.Trackers[p.ID] = tr
		}
		if tr.Submitted {
			continue
		}
		row, ok := snap.Rows[p.ID]
		if !ok || (row.Level == "" && row.Guess == "") {
			continue
		}
		tr.LastSeen = now

		reject := func(msg string) {
			if tr.Message == msg {
				return // already recorded; don't spam alerts or acks
			}
			tr.Message = msg
			s.alerts.push(invalidSubmissionAlert(*p, msg, now))
			acks = append(acks, workbook.Ack{SheetName: p.SheetName, Round: r.Number, Message: msg})
		}

		if row.Round != r.Number || (row.Code != "" && row.Code != r.RoundCode) {
			reject(fmt.Sprintf("row targets round %d/%s, current is round %d/%s",
				row.Round, row.Code, r.Number, r.RoundCode))
			continue
		}
		level, ok := cards.ParseLevel(row.Level)
		if !ok {
			reject(fmt.Sprintf("level %q is not SAFE, MEDIUM or BOLD", row.Level))
			continue
		}
		guess, ok := cards.NormalizeGuess(level, row.Guess)
		if !ok {
			reject(fmt.Sprintf("guess %q does not match level %s", row.Guess, level))
			continue
		}

		r.Submissions[p.ID] = models.Submission{Level: level, Guess: guess, SubmittedAt: now}
		tr.Submitted = true
		tr.Message = ""
		p.LastAction = fmt.Sprintf("submitted %s guess", level)
		acks = append(acks, workbook.Ack{
			SheetName:  p.SheetName,
			Round:      r.Number,
			AcceptedAt: now,
			Message:    "accepted",
		})
		s.recordActionLocked(p.ID.String(), "submission_accepted", map[string]interface{}{
			"level": string(level),
		})
	}

	allSubmitted := len(s.players) > 0
	for _, p := range s.players {
		if tr := r.Trackers[p.ID]; tr == nil || !tr.Submitted {
			allSubmitted = false
			break
		}
	}
	return acks, allSubmitted
}
