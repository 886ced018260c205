// internal/ai/analyzer.go
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/hshokrig/chicken-vault/internal/cards"
)

// IgnoreReason classifies why the analyzer declined to answer.
type IgnoreReason string

const (
	IgnoreNoQuestion     IgnoreReason = "no_question"
	IgnoreChatter        IgnoreReason = "chatter"
	IgnoreNotCardRelated IgnoreReason = "not_card_related"
	IgnoreUnclear        IgnoreReason = "unclear"
)

// Decision is the analyzer's verdict on a transcript: either a cleaned-up
// question with a YES/NO answer, or a structured reason to ignore it.
type Decision struct {
	ShouldRespond  bool         `json:"shouldRespond"`
	EditedQuestion string       `json:"editedQuestion,omitempty"`
	Answer         string       `json:"answer,omitempty"`
	IgnoreReason   IgnoreReason `json:"ignoreReason,omitempty"`
}

// ErrMalformedDecision indicates the model produced output that does not
// parse as a valid decision. Never silently treated as an answer.
var ErrMalformedDecision = errors.New("model returned a malformed decision")

// ErrModelRefusal indicates the model declined to engage at all, which is a
// different outcome from "no valid question found" in the transcript.
var ErrModelRefusal = errors.New("model refused the request")

const analyzerSystemPrompt = `You referee a party game where players ask YES/NO questions about a hidden playing card.
You receive a possibly-noisy voice transcript and a set of facts about the card.
Reply with a single JSON object and nothing else:
{"shouldRespond": bool, "editedQuestion": string, "answer": "YES"|"NO", "ignoreReason": "no_question"|"chatter"|"not_card_related"|"unclear"}
Rules: if the transcript contains exactly one answerable yes/no question about the card, set shouldRespond=true, rewrite it cleanly into editedQuestion, and answer truthfully from the facts.
Otherwise set shouldRespond=false and pick the closest ignoreReason. Never reveal the card.`

// Analyzer turns transcripts into question decisions using a completion
// provider.
type Analyzer struct {
	provider Provider
	model    string
	logger   *log.Logger
}

// NewAnalyzer builds an analyzer on top of a provider.
func NewAnalyzer(provider Provider, model string, logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.New()
	}
	return &Analyzer{provider: provider, model: model, logger: logger}
}

// Analyze asks the model to resolve the transcript against the card facts.
// The facts deliberately exclude the raw card identity beyond what answering
// requires.
func (a *Analyzer) Analyze(ctx context.Context, transcript string, facts cards.Facts) (Decision, error) {
	factsJSON, _ := json.Marshal(facts)
	prompt := fmt.Sprintf("Card facts: %s\nTranscript: %q", factsJSON, transcript)

	raw, err := a.provider.Complete(ctx, a.model, analyzerSystemPrompt, prompt)
	if err != nil {
		return Decision{}, fmt.Errorf("question analysis: %w", err)
	}
	dec, err := parseDecision(raw)
	if err != nil {
		a.logger.WithField("raw", truncate(raw, 200)).Warn("unusable analyzer output")
		return Decision{}, err
	}
	return dec, nil
}

// parseDecision validates raw model output against the decision contract.
// Malformed output fails loudly; a refusal is reported as its own error.
func parseDecision(raw string) (Decision, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var dec Decision
	if err := json.Unmarshal([]byte(text), &dec); err != nil {
		if looksLikeRefusal(text) {
			return Decision{}, fmt.Errorf("%w: %s", ErrModelRefusal, truncate(text, 120))
		}
		return Decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	if dec.ShouldRespond {
		dec.Answer = strings.ToUpper(strings.TrimSpace(dec.Answer))
		if dec.Answer != "YES" && dec.Answer != "NO" {
			return Decision{}, fmt.Errorf("%w: answer %q", ErrMalformedDecision, dec.Answer)
		}
		if strings.TrimSpace(dec.EditedQuestion) == "" {
			return Decision{}, fmt.Errorf("%w: empty edited question", ErrMalformedDecision)
		}
		return dec, nil
	}
	switch dec.IgnoreReason {
	case IgnoreNoQuestion, IgnoreChatter, IgnoreNotCardRelated, IgnoreUnclear:
		return dec, nil
	}
	return Decision{}, fmt.Errorf("%w: ignore reason %q", ErrMalformedDecision, dec.IgnoreReason)
}

func looksLikeRefusal(text string) bool {
	t := strings.ToLower(text)
	for _, marker := range []string{"i can't", "i cannot", "i won't", "i'm sorry", "i am sorry", "i'm unable", "i am unable"} {
		if strings.HasPrefix(t, marker) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
