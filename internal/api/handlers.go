package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nugget/cinebot/internal/documents"
	"github.com/nugget/cinebot/internal/persona"
	"github.com/nugget/cinebot/internal/session"
	"github.com/nugget/cinebot/internal/watchlist"
)

type sessionView struct {
	ID         string    `json:"id"`
	Persona    string    `json:"persona"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Messages   int       `json:"messages"`
	Watchlist  int       `json:"watchlist"`
	Document   string    `json:"document,omitempty"`
}

func viewOf(sess *session.Session) sessionView {
	return sessionView{
		ID:         sess.ID,
		Persona:    sess.Persona().Name,
		CreatedAt:  sess.CreatedAt,
		LastActive: sess.LastActive(),
		Messages:   len(sess.History()),
		Watchlist:  sess.Watchlist().Len(),
		Document:   sess.DocumentName(),
	}
}

type personaRequest struct {
	Persona string `json:"persona"`
}

type messageRequest struct {
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
}

func (r messageRequest) empty() bool {
	return strings.TrimSpace(r.Text) == "" && len(r.Images) == 0
}

// lookup resolves the {id} route parameter, writing a 404 when the
// session is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	return sess, true
}

func unknownPersona(w http.ResponseWriter, name string) {
	respondError(w, http.StatusBadRequest, "unknown_persona",
		fmt.Sprintf("unknown persona %q; choose one of: %s", name, strings.Join(persona.Names(), ", ")))
}

func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"default":  persona.Default,
		"personas": persona.All(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req personaRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Persona != "" {
		if _, err := persona.Get(req.Persona); err != nil {
			unknownPersona(w, req.Persona)
			return
		}
	}

	sess, err := s.sessions.Create()
	if err != nil {
		s.logger.Error("session create failed", "error", err)
		respondError(w, http.StatusInternalServerError, "session_create_failed", err.Error())
		return
	}
	if req.Persona != "" && req.Persona != sess.Persona().Name {
		if _, err := sess.ChangePersona(req.Persona); err != nil {
			unknownPersona(w, req.Persona)
			return
		}
	}
	respondJSON(w, http.StatusCreated, viewOf(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.End(chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.empty() {
		respondError(w, http.StatusBadRequest, "empty_message", "text or images required")
		return
	}

	result, err := sess.Send(r.Context(), req.Text, req.Images...)
	if err != nil {
		s.logger.Error("turn failed", "session", sess.ID, "error", err)
		respondError(w, http.StatusBadGateway, "model_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"persona":  sess.Persona().Name,
		"messages": sess.History(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.Reset()
	respondJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handlePersona(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req personaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if _, err := sess.ChangePersona(req.Persona); err != nil {
		unknownPersona(w, req.Persona)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.Watchlist().FilterByGenre(r.URL.Query().Get("genre")))
}

func (s *Server) handleImportWatchlist(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
		return
	}
	n, err := sess.ImportWatchlist(data)
	if err != nil {
		if errors.Is(err, watchlist.ErrInvalidImport) {
			respondError(w, http.StatusBadRequest, "invalid_watchlist", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "import_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (s *Server) handleClearWatchlist(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.Watchlist().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	minutes, err := strconv.Atoi(q.Get("minutes"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_minutes", "minutes must be an integer")
		return
	}
	genre := q.Get("genre")
	if genre == "" {
		genre = "any"
	}
	respondJSON(w, http.StatusOK, sess.Watchlist().RecommendByTime(genre, minutes))
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "missing_name", "name query parameter is required")
		return
	}
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
		return
	}

	chunks, err := sess.LoadDocument(r.Context(), name, content)
	switch {
	case errors.Is(err, session.ErrDocumentsDisabled):
		respondError(w, http.StatusNotImplemented, "documents_disabled", err.Error())
		return
	case errors.Is(err, documents.ErrUnsupportedFormat):
		respondError(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
		return
	case err != nil:
		s.logger.Warn("document load failed", "session", sess.ID, "document", name, "error", err)
		respondError(w, http.StatusUnprocessableEntity, "document_load_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"document": name,
		"chunks":   chunks,
	})
}

const defaultUsageWindow = 24 * time.Hour

// handleUsage reports totals for the window given by ?since (a Go
// duration, default 24h), overall and per model.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		respondError(w, http.StatusNotImplemented, "usage_disabled", "usage accounting is not configured")
		return
	}
	window := defaultUsageWindow
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_since", "since must be a positive duration such as 24h")
			return
		}
		window = d
	}

	end := time.Now()
	start := end.Add(-window)
	total, err := s.usage.Summary(r.Context(), start, end)
	if err != nil {
		s.logger.Error("usage summary failed", "error", err)
		respondError(w, http.StatusInternalServerError, "usage_failed", "usage query failed")
		return
	}
	byModel, err := s.usage.SummaryByModel(r.Context(), start, end)
	if err != nil {
		s.logger.Error("usage by model failed", "error", err)
		respondError(w, http.StatusInternalServerError, "usage_failed", "usage query failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"start":    start.UTC(),
		"end":      end.UTC(),
		"total":    total,
		"by_model": byModel,
	})
}

// handleSessionUsage reports a session's totals. Usage outlives the
// session, so ended sessions can still be queried.
func (s *Server) handleSessionUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		respondError(w, http.StatusNotImplemented, "usage_disabled", "usage accounting is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	sum, err := s.usage.SessionSummary(r.Context(), id)
	if err != nil {
		s.logger.Error("session usage failed", "session", id, "error", err)
		respondError(w, http.StatusInternalServerError, "usage_failed", "usage query failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session": id,
		"usage":   sum,
	})
}
