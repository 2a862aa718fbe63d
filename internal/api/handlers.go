package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xaenox/notekeeper/internal/models"
	"go.uber.org/zap"
)

// MsgNoteDeleted is the body message of a successful delete.
const MsgNoteDeleted = "Note deleted successfully"

// DeleteResponse is returned by DELETE /api/notes/{id}.
type DeleteResponse struct {
	Message string `json:"message"`
}

// listNotes handles GET /api/notes?search=&tag=
func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	filter := models.NoteFilter{
		Search: r.URL.Query().Get("search"),
		Tag:    r.URL.Query().Get("tag"),
	}

	notes, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.respondStoreError(w, "Failed to list notes", err,
			zap.String("search", filter.Search), zap.String("tag", filter.Tag))
		return
	}

	writeJSON(w, s.logger, http.StatusOK, notes)
}

// getNote handles GET /api/notes/{id}
func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	note, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "Failed to get note", err, zap.String("note_id", id))
		return
	}

	writeJSON(w, s.logger, http.StatusOK, note)
}

// createNote handles POST /api/notes
func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	input, ok := s.decodeInput(w, r)
	if !ok {
		return
	}

	note, err := s.store.Create(r.Context(), input)
	if err != nil {
		s.respondStoreError(w, "Failed to create note", err)
		return
	}

	s.metrics.notesCreated.Inc()
	writeJSON(w, s.logger, http.StatusCreated, note)
}

// updateNote handles PUT /api/notes/{id}
func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	input, ok := s.decodeInput(w, r)
	if !ok {
		return
	}

	note, err := s.store.Update(r.Context(), id, input)
	if err != nil {
		s.respondStoreError(w, "Failed to update note", err, zap.String("note_id", id))
		return
	}

	s.metrics.notesUpdated.Inc()
	writeJSON(w, s.logger, http.StatusOK, note)
}

// deleteNote handles DELETE /api/notes/{id}
func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, "Failed to delete note", err, zap.String("note_id", id))
		return
	}

	s.metrics.notesDeleted.Inc()
	writeJSON(w, s.logger, http.StatusOK, DeleteResponse{Message: MsgNoteDeleted})
}

// decodeInput reads a {title, content, tags?} body and checks the required
// fields before the store is touched.
func (s *Server) decodeInput(w http.ResponseWriter, r *http.Request) (models.NoteInput, bool) {
	var input models.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "Invalid request body")
		return input, false
	}

	if err := input.Validate(); err != nil {
		s.respondStoreError(w, "Rejected note input", err)
		return input, false
	}

	return input.Normalized(), true
}
