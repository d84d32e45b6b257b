// Package enrich orchestrates the two-stage transcription and analysis of
// captured audio notes.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxnote/voxnote/internal/store"
	"github.com/voxnote/voxnote/pkg/models"
)

// memPersistence is an in-memory store.Persistence for pipeline tests.
type memPersistence struct {
	mu    sync.Mutex
	notes []models.Note
}

func (p *memPersistence) Save(_ context.Context, notes []models.Note) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append([]models.Note(nil), notes...)
	return nil
}

func (p *memPersistence) Load(context.Context) ([]models.Note, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Note(nil), p.notes...), nil
}

// mockService is a scriptable enrichment service that counts stage calls.
type mockService struct {
	transcript    string
	transcribeErr error
	analysis      Analysis
	analyzeErr    error

	transcribeGate chan struct{} // when set, Transcribe blocks until closed

	transcribeCalls atomic.Int64
	analyzeCalls    atomic.Int64
}

func (m *mockService) Transcribe(ctx context.Context, audio []byte) (string, error) {
	m.transcribeCalls.Add(1)
	if m.transcribeGate != nil {
		<-m.transcribeGate
	}
	return m.transcript, m.transcribeErr
}

func (m *mockService) Analyze(ctx context.Context, transcript string) (Analysis, error) {
	m.analyzeCalls.Add(1)
	return m.analysis, m.analyzeErr
}

// testStore creates an in-memory catalog store.
func testStore(t *testing.T) *store.NoteStore {
	t.Helper()
	notes, err := store.Open(context.Background(), &memPersistence{}, func(string) bool { return true })
	require.NoError(t, err)
	return notes
}

// testPipeline wires a pipeline whose audio loader never touches disk.
func testPipeline(t *testing.T, service Service, notes *store.NoteStore) *Pipeline {
	t.Helper()
	p := NewPipeline(context.Background(), service, notes)
	p.SetAudioLoader(func(string) ([]byte, error) {
		return []byte("fake audio"), nil
	})
	return p
}

// addNote inserts a placeholder note with the given id.
func addNote(t *testing.T, notes *store.NoteStore, id string) models.Note {
	t.Helper()
	note := models.Note{
		ID:             id,
		Title:          models.Placeholder,
		AudioURLString: "2024-01-01-00-00-00.m4a",
		Transcription:  models.Placeholder,
		Summary:        models.Placeholder,
		Category:       models.Placeholder,
		Timestamp:      time.Now(),
	}
	require.NoError(t, notes.Add(context.Background(), note))
	return note
}

// TestPipelineEnrichesNote tests the full success path.
func TestPipelineEnrichesNote(t *testing.T) {
	notes := testStore(t)
	service := &mockService{
		transcript: "hello world",
		analysis:   Analysis{Summary: "Says hello", Category: "Personal"},
	}
	pipeline := testPipeline(t, service, notes)
	note := addNote(t, notes, "A1")

	result := <-pipeline.Enqueue(note)

	require.Equal(t, StateEnriched, result.State)
	require.NoError(t, result.Err)
	assert.Equal(t, "A1", result.NoteID)

	enriched, ok := notes.Get("A1")
	require.True(t, ok)
	assert.Equal(t, "hello world", enriched.Transcription)
	assert.Equal(t, "Says hello", enriched.Summary)
	assert.Equal(t, "Personal", enriched.Category)
	assert.Equal(t, "Note: Says hello...", enriched.Title)

	assert.Equal(t, int64(1), service.transcribeCalls.Load())
	assert.Equal(t, int64(1), service.analyzeCalls.Load())
}

// TestPipelineTranscribeFailureShortCircuits tests that a stage-1 failure
// never reaches stage 2 and lands the Failed sentinels.
func TestPipelineTranscribeFailureShortCircuits(t *testing.T) {
	notes := testStore(t)
	service := &mockService{transcribeErr: errors.New("service unavailable")}
	pipeline := testPipeline(t, service, notes)
	note := addNote(t, notes, "A1")

	result := <-pipeline.Enqueue(note)

	require.Equal(t, StateFailed, result.State)
	require.Error(t, result.Err)
	assert.Equal(t, int64(0), service.analyzeCalls.Load())

	failed, ok := notes.Get("A1")
	require.True(t, ok)
	assert.True(t, failed.IsFailed())
	assert.Equal(t, models.FailedTitle, failed.Title)
	assert.Equal(t, models.FailedTranscription, failed.Transcription)
}

// TestPipelineEmptyTranscriptFails tests the non-empty transition condition
// between the transcription and analysis states.
func TestPipelineEmptyTranscriptFails(t *testing.T) {
	notes := testStore(t)
	service := &mockService{transcript: ""}
	pipeline := testPipeline(t, service, notes)
	note := addNote(t, notes, "A1")

	result := <-pipeline.Enqueue(note)

	require.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, ErrInvalidResponse)
	assert.Equal(t, int64(0), service.analyzeCalls.Load())
}

// TestPipelineAnalyzeFailure tests terminal failure from the analysis state.
func TestPipelineAnalyzeFailure(t *testing.T) {
	notes := testStore(t)
	service := &mockService{
		transcript: "hello world",
		analyzeErr: errors.New("bad gateway"),
	}
	pipeline := testPipeline(t, service, notes)
	note := addNote(t, notes, "A1")

	result := <-pipeline.Enqueue(note)

	require.Equal(t, StateFailed, result.State)
	assert.Equal(t, int64(1), service.analyzeCalls.Load())

	failed, ok := notes.Get("A1")
	require.True(t, ok)
	assert.True(t, failed.IsFailed())
}

// TestPipelineAudioLoadFailure tests that an unreadable artifact fails the
// note without calling either service stage.
func TestPipelineAudioLoadFailure(t *testing.T) {
	notes := testStore(t)
	service := &mockService{}
	pipeline := NewPipeline(context.Background(), service, notes)
	pipeline.SetAudioLoader(func(string) ([]byte, error) {
		return nil, errors.New("no such file")
	})
	note := addNote(t, notes, "A1")

	result := <-pipeline.Enqueue(note)

	require.Equal(t, StateFailed, result.State)
	assert.Equal(t, int64(0), service.transcribeCalls.Load())
	assert.Equal(t, int64(0), service.analyzeCalls.Load())

	failed, ok := notes.Get("A1")
	require.True(t, ok)
	assert.True(t, failed.IsFailed())
}

// TestPipelineDeleteMidFlight tests that deleting a note during an in-flight
// run leaves the terminal update a safe no-op: the note is not resurrected.
func TestPipelineDeleteMidFlight(t *testing.T) {
	notes := testStore(t)
	gate := make(chan struct{})
	service := &mockService{
		transcript:     "hello world",
		analysis:       Analysis{Summary: "Says hello", Category: "Personal"},
		transcribeGate: gate,
	}
	pipeline := testPipeline(t, service, notes)
	note := addNote(t, notes, "A1")

	done := pipeline.Enqueue(note)
	require.NoError(t, notes.Remove(context.Background(), "A1"))
	close(gate)

	result := <-done
	require.Equal(t, StateEnriched, result.State)
	assert.ErrorIs(t, result.Err, store.ErrNotFound)

	// No cancellation: the run completed both stages regardless.
	assert.Equal(t, int64(1), service.analyzeCalls.Load())

	_, ok := notes.Get("A1")
	assert.False(t, ok)
	assert.Equal(t, 0, notes.Len())
}

// TestPipelineAtomicTransition tests that no persisted update ever mixes
// placeholder and terminal field values.
func TestPipelineAtomicTransition(t *testing.T) {
	notes := testStore(t)
	var mu sync.Mutex
	var observed []models.Note
	notes.SetNotify(func(ev store.Event) {
		if ev.Type == store.EventUpdated {
			mu.Lock()
			observed = append(observed, ev.Note)
			mu.Unlock()
		}
	})

	okService := &mockService{
		transcript: "hello world",
		analysis:   Analysis{Summary: "Says hello", Category: "Personal"},
	}
	failService := &mockService{transcribeErr: errors.New("down")}

	okPipeline := testPipeline(t, okService, notes)
	failPipeline := testPipeline(t, failService, notes)

	good := addNote(t, notes, "good")
	bad := addNote(t, notes, "bad")
	<-okPipeline.Enqueue(good)
	<-failPipeline.Enqueue(bad)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 2)
	for _, note := range observed {
		placeholders := 0
		for _, field := range []string{note.Title, note.Transcription, note.Summary, note.Category} {
			if field == models.Placeholder {
				placeholders++
			}
		}
		assert.Zero(t, placeholders, "note %s mixed placeholder and terminal fields", note.ID)
	}
}

// TestPipelineConcurrentRuns tests N independent in-flight runs with no
// cross-note contamination.
func TestPipelineConcurrentRuns(t *testing.T) {
	notes := testStore(t)
	const n = 12

	pipelines := make([]*Pipeline, n)
	results := make([]<-chan Result, n)
	for i := 0; i < n; i++ {
		service := &mockService{
			transcript: fmt.Sprintf("transcript %d", i),
			analysis: Analysis{
				Summary:  fmt.Sprintf("summary %d", i),
				Category: fmt.Sprintf("Category%d", i),
			},
		}
		pipelines[i] = testPipeline(t, service, notes)
	}

	for i := 0; i < n; i++ {
		note := addNote(t, notes, fmt.Sprintf("n%d", i))
		results[i] = pipelines[i].Enqueue(note)
	}

	for i := 0; i < n; i++ {
		result := <-results[i]
		require.Equal(t, StateEnriched, result.State)
	}

	for i := 0; i < n; i++ {
		note, ok := notes.Get(fmt.Sprintf("n%d", i))
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("transcript %d", i), note.Transcription)
		assert.Equal(t, fmt.Sprintf("summary %d", i), note.Summary)
		assert.Equal(t, fmt.Sprintf("Category%d", i), note.Category)
	}
}

// TestPipelineStats tests counters after mixed success and failure runs.
func TestPipelineStats(t *testing.T) {
	notes := testStore(t)
	okService := &mockService{
		transcript: "hello",
		analysis:   Analysis{Summary: "s", Category: "c"},
	}
	failService := &mockService{transcribeErr: errors.New("down")}

	okPipeline := testPipeline(t, okService, notes)
	failPipeline := testPipeline(t, failService, notes)

	<-okPipeline.Enqueue(addNote(t, notes, "ok1"))
	<-okPipeline.Enqueue(addNote(t, notes, "ok2"))
	<-failPipeline.Enqueue(addNote(t, notes, "bad1"))
	okPipeline.Wait()
	failPipeline.Wait()

	okStats := okPipeline.Stats()
	assert.Equal(t, int64(2), okStats.Enqueued)
	assert.Equal(t, int64(2), okStats.Enriched)
	assert.Equal(t, int64(0), okStats.Failed)
	assert.Equal(t, int64(0), okStats.InFlight)

	failStats := failPipeline.Stats()
	assert.Equal(t, int64(1), failStats.Enqueued)
	assert.Equal(t, int64(1), failStats.Failed)
}
