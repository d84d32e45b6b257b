// Package models contains domain models for voxnote.
package models

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Sentinel field values. Every mutable note field starts at Placeholder and
// moves exactly once, as a group, to either enriched content or the Failed
// sentinels.
const (
	Placeholder = "Processing..."

	FailedTitle         = "Error processing recording"
	FailedTranscription = "Error processing recording"
	FailedSummary       = "Error"
	FailedCategory      = "Error"
)

// titlePrefixLen is the number of summary characters carried into a derived title.
const titlePrefixLen = 30

// Note pairs a captured audio artifact with its derived transcript, summary,
// and category. ID, AudioURLString, and Timestamp are immutable after
// construction; the remaining four fields mutate only through the store's
// atomic update path.
type Note struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	AudioURLString string    `json:"audioURLString"`
	Transcription  string    `json:"transcription"`
	Summary        string    `json:"summary"`
	Category       string    `json:"category"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewCapturedNote creates a placeholder note for a freshly captured artifact.
func NewCapturedNote(audioRef string) Note {
	return Note{
		ID:             uuid.NewString(),
		Title:          Placeholder,
		AudioURLString: audioRef,
		Transcription:  Placeholder,
		Summary:        Placeholder,
		Category:       Placeholder,
		Timestamp:      time.Now().UTC(),
	}
}

// AudioPath resolves the audio reference to a filesystem path. References may
// be stored either as plain paths or as file:// URLs.
func (n Note) AudioPath() string {
	if u, err := url.Parse(n.AudioURLString); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return n.AudioURLString
}

// IsPlaceholder reports whether the note is still awaiting enrichment.
func (n Note) IsPlaceholder() bool {
	return n.Category == Placeholder
}

// IsFailed reports whether enrichment ended in the terminal failure state.
func (n Note) IsFailed() bool {
	return n.Category == FailedCategory && n.Summary == FailedSummary
}

// MarkEnriched transitions all four mutable fields to their enriched values.
func (n *Note) MarkEnriched(transcription, summary, category string) {
	n.Title = TitleFromSummary(summary)
	n.Transcription = transcription
	n.Summary = summary
	n.Category = category
}

// MarkFailed transitions all four mutable fields to the Failed sentinels.
func (n *Note) MarkFailed() {
	n.Title = FailedTitle
	n.Transcription = FailedTranscription
	n.Summary = FailedSummary
	n.Category = FailedCategory
}

// TitleFromSummary derives a short display title from a summary.
func TitleFromSummary(summary string) string {
	runes := []rune(summary)
	if len(runes) > titlePrefixLen {
		runes = runes[:titlePrefixLen]
	}
	return "Note: " + string(runes) + "..."
}

// SentinelCategory reports whether a category value is one of the lifecycle
// sentinels. Category aggregation skips these.
func SentinelCategory(category string) bool {
	return category == "" || category == Placeholder || category == FailedCategory
}
