// Package server exposes the voxnote HTTP API: note catalog reads, note
// deletion, audio upload capture, and a live event stream.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/voxnote/voxnote/internal/capture"
	"github.com/voxnote/voxnote/internal/enrich"
	"github.com/voxnote/voxnote/internal/server/sse"
	"github.com/voxnote/voxnote/internal/store"
)

// artifactTimeLayout names uploaded recordings the way the capture device
// does, without spaces or special characters.
const artifactTimeLayout = "2006-01-02-15-04-05"

// maxUploadBytes caps multipart uploads of audio artifacts.
const maxUploadBytes = 32 << 20

// Server is the HTTP API service.
type Server struct {
	store         *store.NoteStore
	controller    *capture.Controller
	pipeline      *enrich.Pipeline
	broadcaster   *sse.Broadcaster
	recordingsDir string
	router        chi.Router
}

// New creates the API server and wires the store's event feed into the SSE
// broadcaster.
func New(notes *store.NoteStore, controller *capture.Controller, pipeline *enrich.Pipeline, recordingsDir string) *Server {
	s := &Server{
		store:         notes,
		controller:    controller,
		pipeline:      pipeline,
		broadcaster:   sse.NewBroadcaster(),
		recordingsDir: recordingsDir,
	}

	notes.SetNotify(func(ev store.Event) {
		s.broadcaster.Broadcast(ev)
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Get("/notes", s.handleListNotes)
		r.Post("/notes", s.handleUploadNote)
		r.Get("/notes/{id}", s.handleGetNote)
		r.Delete("/notes/{id}", s.handleDeleteNote)
		r.Get("/categories", s.handleCategories)
		r.Get("/stats", s.handleStats)
		r.Get("/events", s.handleEvents)
	})
	s.router = r
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().Str("addr", addr).Msg("API server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handleListNotes returns the catalog newest first, optionally filtered by
// the category query parameter.
func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	writeJSON(w, http.StatusOK, s.store.List(category))
}

// handleGetNote returns a single note.
func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// handleDeleteNote removes a note from the catalog. The audio artifact stays
// on disk; the integrity filter reconciles it on the next load if removed.
func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Remove(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadNote accepts a multipart audio upload, stores it in the
// recordings directory under a timestamped name, and captures it. Responds
// 202 with the placeholder note; enrichment continues in the background.
func (s *Server) handleUploadNote(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart payload")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	path := filepath.Join(s.recordingsDir, time.Now().Format(artifactTimeLayout)+".m4a")
	if err := writeArtifact(path, file); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to store uploaded artifact")
		writeError(w, http.StatusInternalServerError, "failed to store artifact")
		return
	}

	note, err := s.controller.Capture(r.Context(), path)
	if err != nil {
		if errors.Is(err, capture.ErrDuplicateArtifact) {
			writeError(w, http.StatusConflict, "artifact already captured")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, note)
}

// handleCategories returns per-category note counts, sentinel categories
// excluded.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Categories())
}

// handleStats returns pipeline counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Stats())
}

// handleEvents streams catalog events over SSE until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client, err := s.broadcaster.AddClient(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	client.Flusher.Flush()

	select {
	case <-r.Context().Done():
		s.broadcaster.RemoveClient(client)
	case <-client.Done:
	}
}

// writeArtifact copies an upload to its destination path.
func writeArtifact(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"message": message},
	})
}
