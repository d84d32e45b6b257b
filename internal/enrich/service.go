// Package enrich orchestrates the two-stage transcription and analysis of
// captured audio notes.
package enrich

import (
	"context"
	"errors"
)

// ErrInvalidResponse indicates the enrichment service answered with a payload
// that could not be used (empty transcript, malformed analysis JSON).
var ErrInvalidResponse = errors.New("invalid enrichment response")

// Analysis is the result of the analysis stage.
type Analysis struct {
	Summary  string `json:"summary"`
	Category string `json:"category"`
}

// Service is the external inference contract. Both stages may block on
// network I/O; Analyze depends on Transcribe's output and must never be
// called after a failed transcription.
type Service interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Analyze(ctx context.Context, transcript string) (Analysis, error)
}
