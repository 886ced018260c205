// internal/ai/provider.go
package ai

import "context"

// Provider is the minimal completion surface the analyzer needs. The OpenAI
// client implements it; tests substitute a canned provider.
type Provider interface {
	Complete(ctx context.Context, model, systemPrompt, prompt string) (string, error)
}

// Transcriber converts recorded audio into text. Optional; typed transcripts
// bypass it entirely.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}
