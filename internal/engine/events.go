// internal/engine/events.go
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hshokrig/chicken-vault/internal/models"
)

// ActionRecord mirrors one engine action to out-of-process consumers
// (the Redis action queue).
type ActionRecord struct {
	SessionID uuid.UUID              `json:"session_id"`
	Index     int                    `json:"index"`
	Actor     string                 `json:"actor"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// ActionRecorder receives engine actions. Implementations must be safe to
// call from goroutines; failures are logged, never surfaced to the dealer.
type ActionRecorder interface {
	Record(ctx context.Context, rec ActionRecord) error
}

// RoundRecorder persists finalized round summaries.
type RoundRecorder interface {
	RecordRound(ctx context.Context, sessionID uuid.UUID, summary models.RoundSummary, totals models.TeamTotals) error
}

// Subscribe registers a bounded snapshot channel. Slow consumers miss
// intermediate snapshots rather than blocking the engine. The returned cancel
// function must be called when the consumer goes away.
func (s *Session) Subscribe() (<-chan models.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.Snapshot, 8)
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	// Seed with the current state so new consumers render immediately.
	ch <- s.snapshotLocked()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// notifyLocked pushes the current snapshot to every subscriber, dropping it
// for subscribers whose buffer is full.
func (s *Session) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// recordActionLocked mirrors an action to the recorder without blocking the
// engine. The action index is monotonic per session.
func (s *Session) recordActionLocked(actor, actionType string, payload map[string]interface{}) {
	s.actionIndex++
	if s.Recorder == nil {
		return
	}
	rec := ActionRecord{
		SessionID: s.ID,
		Index:     s.actionIndex,
		Actor:     actor,
		Type:      actionType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Recorder.Record(ctx, rec); err != nil {
			s.logger.Warnf("action record failed: %v", err)
		}
	}()
}

// snapshotLocked builds the public state view. Deep-copies the mutable maps
// so callers can hold the snapshot across lock boundaries. The secret card
// and insider identity never appear here.
func (s *Session) snapshotLocked() models.Snapshot {
	players := make([]models.Player, len(s.players))
	for i, p := range s.players {
		players[i] = *p
	}

	var round *models.RoundState
	if s.round != nil {
		r := *s.round
		r.Questions = append([]models.QuestionEntry(nil), s.round.Questions...)
		r.Submissions = make(map[uuid.UUID]models.Submission, len(s.round.Submissions))
		for id, sub := range s.round.Submissions {
			r.Submissions[id] = sub
		}
		r.Trackers = make(map[uuid.UUID]*models.SubmissionTracker, len(s.round.Trackers))
		for id, tr := range s.round.Trackers {
			cp := *tr
			r.Trackers[id] = &cp
		}
		round = &r
	}

	return models.Snapshot{
		Phase:     string(s.phase),
		Config:    s.cfg,
		Preflight: s.preflight,
		Players:   players,
		Round:     round,
		Totals:    s.totals,
		History:   append([]models.RoundSummary(nil), s.history...),
		Workbook: models.WorkbookStatus{
			Path:        s.wb.Path(),
			Initialized: s.wbReady,
			Alerts:      s.alerts.list(),
		},
		DemoActive: s.demoActive,
	}
}

// SnapshotNow returns the current state view.
func (s *Session) SnapshotNow() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}
