package enrich

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/voxnote/voxnote/internal/store"
	"github.com/voxnote/voxnote/pkg/models"
)

// State is a pipeline state for a single note. Enriched and Failed are
// terminal; Failed is reachable from both Transcribing and Analyzing.
type State string

const (
	StatePending      State = "pending"
	StateTranscribing State = "transcribing"
	StateAnalyzing    State = "analyzing"
	StateEnriched     State = "enriched"
	StateFailed       State = "failed"
)

// Result is the completion signal for one enrichment run. State is the
// terminal pipeline state; Err carries the stage error on failure, or the
// store error when the note vanished before the terminal write.
type Result struct {
	NoteID string
	State  State
	Err    error
}

// AudioLoader reads the audio artifact behind a resolved path. Injected so
// tests run without touching the filesystem.
type AudioLoader func(path string) ([]byte, error)

// Pipeline runs the per-note enrichment state machine. Each enqueued note is
// an independent unit of work; any number may be in flight concurrently. A
// note gets exactly one attempt, no retry, no cancellation: once started, a
// run proceeds to its terminal state even if the note is deleted mid-flight,
// in which case the terminal write is a logged no-op.
type Pipeline struct {
	ctx       context.Context
	service   Service
	store     *store.NoteStore
	loadAudio AudioLoader
	stats     Stats
	wg        sync.WaitGroup
}

// NewPipeline creates a pipeline. Runs inherit ctx, not the caller's context,
// so an enqueue from a short-lived request cannot abort the run.
func NewPipeline(ctx context.Context, service Service, notes *store.NoteStore) *Pipeline {
	return &Pipeline{
		ctx:       ctx,
		service:   service,
		store:     notes,
		loadAudio: os.ReadFile,
	}
}

// SetAudioLoader overrides how audio bytes are read. Must be called before
// the first Enqueue.
func (p *Pipeline) SetAudioLoader(fn AudioLoader) {
	p.loadAudio = fn
}

// Enqueue starts an asynchronous enrichment run for the note and returns a
// buffered completion channel. Callers are free to ignore it; capture is
// fire-and-forget.
func (p *Pipeline) Enqueue(note models.Note) <-chan Result {
	done := make(chan Result, 1)
	p.stats.enqueued.Add(1)
	p.stats.inFlight.Add(1)
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer p.stats.inFlight.Add(-1)

		result := p.run(note)
		switch result.State {
		case StateEnriched:
			p.stats.enriched.Add(1)
		case StateFailed:
			p.stats.failed.Add(1)
		}
		done <- result
	}()

	return done
}

// Wait blocks until every in-flight run has reached a terminal state.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}

// run drives one note from Pending to a terminal state.
func (p *Pipeline) run(note models.Note) Result {
	log.Debug().Str("noteId", note.ID).Str("state", string(StateTranscribing)).Msg("Enrichment started")

	audio, err := p.loadAudio(note.AudioPath())
	if err != nil {
		log.Error().Err(err).Str("noteId", note.ID).Msg("Audio artifact unreadable")
		return p.fail(note, err)
	}

	transcript, err := p.service.Transcribe(p.ctx, audio)
	if err == nil && transcript == "" {
		err = fmt.Errorf("empty transcript: %w", ErrInvalidResponse)
	}
	if err != nil {
		// Transcription failed: the analysis stage is never attempted.
		log.Error().Err(err).Str("noteId", note.ID).Msg("Transcription failed")
		return p.fail(note, err)
	}
	log.Debug().Str("noteId", note.ID).Str("state", string(StateAnalyzing)).Msg("Transcription completed")

	analysis, err := p.service.Analyze(p.ctx, transcript)
	if err != nil {
		log.Error().Err(err).Str("noteId", note.ID).Msg("Analysis failed")
		return p.fail(note, err)
	}

	_, err = p.store.Update(p.ctx, note.ID, func(n *models.Note) {
		n.MarkEnriched(transcript, analysis.Summary, analysis.Category)
	})
	if err != nil {
		p.logLostUpdate(note.ID, err)
		return Result{NoteID: note.ID, State: StateEnriched, Err: err}
	}

	log.Info().
		Str("noteId", note.ID).
		Str("category", analysis.Category).
		Msg("Note enriched")
	return Result{NoteID: note.ID, State: StateEnriched}
}

// fail writes the Failed sentinels as a single atomic field-group update.
func (p *Pipeline) fail(note models.Note, stageErr error) Result {
	_, err := p.store.Update(p.ctx, note.ID, func(n *models.Note) {
		n.MarkFailed()
	})
	if err != nil {
		p.logLostUpdate(note.ID, err)
	}
	return Result{NoteID: note.ID, State: StateFailed, Err: stageErr}
}

// logLostUpdate records a terminal write that found no note. The note was
// deleted while the run was in flight; the update is a safe no-op and must
// not resurrect it.
func (p *Pipeline) logLostUpdate(id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		log.Info().Str("noteId", id).Msg("Note deleted during enrichment, discarding result")
		return
	}
	log.Error().Err(err).Str("noteId", id).Msg("Failed to persist enrichment result")
}
