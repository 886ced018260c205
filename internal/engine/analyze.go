// internal/engine/analyze.go
package engine

import (
	"context"
	"fmt"

	"github.com/hshokrig/chicken-vault/internal/ai"
	"github.com/hshokrig/chicken-vault/internal/cards"
	"github.com/hshokrig/chicken-vault/internal/models"
)

// QuestionAnalyzer resolves a transcript into a question decision given the
// secret card's derived facts.
type QuestionAnalyzer interface {
	Analyze(ctx context.Context, transcript string, facts cards.Facts) (ai.Decision, error)
}

// AnalysisOutcome is what the AI path returns to the caller. Unlike the rest
// of the command surface it is not just a snapshot: the dealer needs to know
// whether the question was applied or should be re-asked.
type AnalysisOutcome struct {
	Applied  bool            `json:"applied"`
	Retry    bool            `json:"retry"`
	Decision ai.Decision     `json:"decision"`
	Snapshot models.Snapshot `json:"snapshot"`
}

// AnalyzeQuestion runs the AI-assisted question path: ship the transcript and
// card facts to the analyzer, then either resolve the question through the
// normal path (advancing turn, incrementing vault) or leave state untouched
// and report a retry outcome. The provider call runs outside the session lock;
// the phase is re-checked before the decision is applied.
func (s *Session) AnalyzeQuestion(ctx context.Context, transcript string) (AnalysisOutcome, error) {
	s.mu.Lock()
	if s.phase != PhaseInvestigation {
		s.mu.Unlock()
		return AnalysisOutcome{}, phaseErr("analyze question", s.phase)
	}
	if s.Analyzer == nil {
		s.mu.Unlock()
		return AnalysisOutcome{}, ErrAnalyzerUnavailable
	}
	facts := cards.FactsFor(s.secret.card)
	s.mu.Unlock()

	dec, err := s.Analyzer.Analyze(ctx, transcript, facts)
	if err != nil {
		// External service failure: distinct retry outcome, never a default answer.
		return AnalysisOutcome{Retry: true}, fmt.Errorf("analyze question: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !dec.ShouldRespond {
		return AnalysisOutcome{Retry: true, Decision: dec, Snapshot: s.snapshotLocked()}, nil
	}
	if s.phase != PhaseInvestigation {
		// Timer expired while the model was thinking; don't mutate a later phase.
		return AnalysisOutcome{Retry: true, Decision: dec, Snapshot: s.snapshotLocked()},
			phaseErr("apply analyzed question", s.phase)
	}
	if err := s.resolveQuestionLocked(dec.EditedQuestion, dec.Answer); err != nil {
		return AnalysisOutcome{Retry: true, Decision: dec, Snapshot: s.snapshotLocked()}, err
	}
	s.notifyLocked()
	return AnalysisOutcome{Applied: true, Decision: dec, Snapshot: s.snapshotLocked()}, nil
}
