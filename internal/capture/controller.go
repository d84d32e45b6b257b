// Package capture turns recorded audio artifacts into catalog notes and
// hands them to the enrichment pipeline.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/voxnote/voxnote/internal/enrich"
	"github.com/voxnote/voxnote/internal/store"
	"github.com/voxnote/voxnote/pkg/models"
)

// ErrDuplicateArtifact is returned when the catalog already references the
// audio artifact being captured.
var ErrDuplicateArtifact = errors.New("artifact already captured")

// Controller is the capture entry point: it creates the placeholder note,
// persists it, and fires the enrichment pipeline without waiting on it.
type Controller struct {
	store    *store.NoteStore
	pipeline *enrich.Pipeline
}

// NewController creates a capture controller.
func NewController(notes *store.NoteStore, pipeline *enrich.Pipeline) *Controller {
	return &Controller{store: notes, pipeline: pipeline}
}

// Capture records a new note for the artifact at audioPath. The returned note
// is the persisted placeholder; enrichment continues in the background.
func (c *Controller) Capture(ctx context.Context, audioPath string) (models.Note, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return models.Note{}, fmt.Errorf("audio artifact %s: %w", audioPath, err)
	}
	if c.store.ContainsAudioRef(audioPath) {
		return models.Note{}, fmt.Errorf("capture %s: %w", audioPath, ErrDuplicateArtifact)
	}

	note := models.NewCapturedNote(audioPath)
	if err := c.store.Add(ctx, note); err != nil {
		return models.Note{}, err
	}

	log.Info().
		Str("noteId", note.ID).
		Str("audioRef", audioPath).
		Msg("Note captured, enrichment queued")
	c.pipeline.Enqueue(note)
	return note, nil
}
