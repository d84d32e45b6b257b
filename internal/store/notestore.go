package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/voxnote/voxnote/pkg/models"
)

var (
	// ErrNotFound is returned for operations on an id absent from the catalog.
	ErrNotFound = errors.New("note not found")
	// ErrDuplicateID is returned when Add sees an id already in the catalog.
	// Under correct id generation this is a programmer error, not a runtime path.
	ErrDuplicateID = errors.New("duplicate note id")
)

// EventType classifies a catalog mutation.
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// Event describes a committed catalog mutation.
type Event struct {
	Type EventType   `json:"type"`
	Note models.Note `json:"note"`
}

// EventFunc receives catalog events after the mutation has been persisted.
type EventFunc func(Event)

// NoteStore is the in-memory catalog of notes. All mutation is serialized
// through a single mutex, and every mutation is written through to the
// Persistence layer before it commits: an observed in-memory state is always
// already durable.
type NoteStore struct {
	mu          sync.Mutex
	notes       []models.Note
	persistence Persistence
	notify      EventFunc
}

// Open loads the catalog, drops notes whose audio artifact no longer exists,
// and persists the filtered catalog back when anything was dropped.
func Open(ctx context.Context, p Persistence, exists ArtifactChecker) (*NoteStore, error) {
	notes, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	kept := FilterMissing(notes, exists)
	if len(kept) != len(notes) {
		if err := p.Save(ctx, kept); err != nil {
			return nil, fmt.Errorf("persist filtered catalog: %w", err)
		}
		log.Info().
			Int("loaded", len(notes)).
			Int("kept", len(kept)).
			Msg("Catalog reconciled with filesystem")
	}

	return &NoteStore{notes: kept, persistence: p}, nil
}

// SetNotify sets the callback invoked after each committed mutation.
// Must be set before the store is shared across goroutines.
func (s *NoteStore) SetNotify(fn EventFunc) {
	s.notify = fn
}

// Add inserts a new note and persists the catalog.
func (s *NoteStore) Add(ctx context.Context, note models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(note.ID) >= 0 {
		return fmt.Errorf("add note %s: %w", note.ID, ErrDuplicateID)
	}

	next := make([]models.Note, 0, len(s.notes)+1)
	next = append(next, s.notes...)
	next = append(next, note)

	if err := s.persistence.Save(ctx, next); err != nil {
		return fmt.Errorf("persist catalog: %w", err)
	}
	s.notes = next

	s.emit(Event{Type: EventAdded, Note: note})
	return nil
}

// Update applies a field-group mutation atomically and persists the catalog.
// The mutator sees a copy; nothing is visible to readers until the mutation
// has been durably saved. Returns the updated note.
func (s *NoteStore) Update(ctx context.Context, id string, mutate func(*models.Note)) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Note{}, fmt.Errorf("update note %s: %w", id, ErrNotFound)
	}

	updated := s.notes[i]
	mutate(&updated)
	// Immutable fields never change, whatever the mutator did.
	updated.ID = s.notes[i].ID
	updated.AudioURLString = s.notes[i].AudioURLString
	updated.Timestamp = s.notes[i].Timestamp

	next := make([]models.Note, len(s.notes))
	copy(next, s.notes)
	next[i] = updated

	if err := s.persistence.Save(ctx, next); err != nil {
		return models.Note{}, fmt.Errorf("persist catalog: %w", err)
	}
	s.notes = next

	s.emit(Event{Type: EventUpdated, Note: updated})
	return updated, nil
}

// Remove deletes a note and persists the catalog.
func (s *NoteStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("remove note %s: %w", id, ErrNotFound)
	}
	removed := s.notes[i]

	next := make([]models.Note, 0, len(s.notes)-1)
	next = append(next, s.notes[:i]...)
	next = append(next, s.notes[i+1:]...)

	if err := s.persistence.Save(ctx, next); err != nil {
		return fmt.Errorf("persist catalog: %w", err)
	}
	s.notes = next

	s.emit(Event{Type: EventRemoved, Note: removed})
	return nil
}

// Get returns a note by id.
func (s *NoteStore) Get(id string) (models.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Note{}, false
	}
	return s.notes[i], true
}

// List returns a consistent snapshot ordered newest first. An empty category
// returns the full catalog; otherwise only notes in that category.
func (s *NoteStore) List(category string) []models.Note {
	s.mu.Lock()
	snapshot := make([]models.Note, 0, len(s.notes))
	for _, note := range s.notes {
		if category == "" || note.Category == category {
			snapshot = append(snapshot, note)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(snapshot, func(a, b int) bool {
		return snapshot[a].Timestamp.After(snapshot[b].Timestamp)
	})
	return snapshot
}

// Len returns the number of notes in the catalog.
func (s *NoteStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

// Categories returns per-category note counts, skipping the lifecycle
// sentinel categories.
func (s *NoteStore) Categories() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, note := range s.notes {
		if models.SentinelCategory(note.Category) {
			continue
		}
		counts[note.Category]++
	}
	return counts
}

// ContainsAudioRef reports whether any note already references the artifact.
func (s *NoteStore) ContainsAudioRef(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, note := range s.notes {
		if note.AudioURLString == ref {
			return true
		}
	}
	return false
}

// indexOf returns the position of id in the catalog, or -1. Caller holds the lock.
func (s *NoteStore) indexOf(id string) int {
	for i, note := range s.notes {
		if note.ID == id {
			return i
		}
	}
	return -1
}

// emit delivers an event to the notify callback. Caller holds the lock, so
// events arrive in mutation order.
func (s *NoteStore) emit(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}
