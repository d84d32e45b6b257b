package store

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/voxnote/voxnote/pkg/models"
)

// ArtifactChecker reports whether the audio artifact behind a reference still
// exists. Injected so loading does not depend on the filesystem directly.
type ArtifactChecker func(ref string) bool

// OSArtifactChecker resolves references against the local filesystem.
func OSArtifactChecker(ref string) bool {
	path := models.Note{AudioURLString: ref}.AudioPath()
	_, err := os.Stat(path)
	return err == nil
}

// FilterMissing returns the notes whose audio artifact still resolves. A note
// whose audio vanished is unrecoverable (there is no transcript without the
// source audio), so it is dropped and logged as data loss. The caller decides
// whether the filtered catalog is persisted back.
func FilterMissing(notes []models.Note, exists ArtifactChecker) []models.Note {
	kept := make([]models.Note, 0, len(notes))
	for _, note := range notes {
		if exists(note.AudioURLString) {
			kept = append(kept, note)
			continue
		}
		log.Warn().
			Str("noteId", note.ID).
			Str("audioRef", note.AudioURLString).
			Msg("Audio artifact missing, dropping note from catalog")
	}
	return kept
}
