package shim

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/agentlink/internal/metrics"
	"github.com/mattjoyce/agentlink/internal/protocol"
	"github.com/mattjoyce/agentlink/internal/storage"
)

const sessionIDPrefix = "session-"

// handleHealth handles GET /global/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, protocol.HealthResponse{Healthy: true, Version: s.config.Version})
}

// handleCreateSession handles POST /session/create. The body is optional.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body protocol.CreateSessionBody
	if err := protocol.DecodeStrict(r.Body, &body); err != nil && !errors.Is(err, protocol.ErrEmptyBody) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.store.Create(r.Context(), sessionIDPrefix+s.newID(), body.Title)
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.SessionCreated()
	s.logger.Info("session created", "session_id", sess.ID)

	respondJSON(w, http.StatusOK, protocol.SessionCreateResponse{Data: protocol.SessionRef{ID: sess.ID}})
}

// handleListSessions handles GET /session/list.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]protocol.Session, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, s.sessionView(sess))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetSession handles GET /session/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.sessionView(*sess))
}

// handleDeleteSession handles DELETE /session/{id}. A running execution is aborted.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.registry.Abort(id)

	if err := s.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, true)
}

// handleMessages handles GET /session/{id}/messages.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := s.store.Messages(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]protocol.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, protocol.Message{
			ID:        m.ID,
			SessionID: m.SessionID,
			Role:      m.Role,
			Parts:     []protocol.Part{protocol.TextPart(m.Text)},
			ExitCode:  m.ExitCode,
			Truncated: m.Truncated,
			CreatedAt: m.CreatedAt.UnixMilli(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handlePrompt handles POST /session/{id}/prompt.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if s.registry.Running(sess.ID) {
		s.writeError(w, http.StatusConflict, ErrBusy.Error())
		return
	}

	var body protocol.PromptBody
	if err := protocol.DecodeStrict(r.Body, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prompt := body.Text()
	storeUser := func() error {
		_, err := s.store.AppendMessage(r.Context(), storage.Message{
			ID:        s.newID(),
			SessionID: sess.ID,
			Role:      storage.RoleUser,
			Text:      prompt,
		})
		if err != nil {
			return &storeError{err: err}
		}
		return nil
	}

	if body.NoReply {
		if err := storeUser(); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, protocol.PromptResponse{Parts: []protocol.Part{}})
		return
	}

	// The user message is stored only once the execution is admitted, so a
	// rejected prompt leaves the transcript untouched.
	res, err := s.registry.RunAdmitted(r.Context(), sess.ID, prompt, storeUser)
	var serr *storeError
	switch {
	case errors.As(err, &serr):
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	case errors.Is(err, ErrBusy):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, "shim is shutting down")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	text, stream := SelectOutput(res)
	exitCode := res.ExitCode
	if _, err := s.store.AppendMessage(r.Context(), storage.Message{
		ID:        s.newID(),
		SessionID: sess.ID,
		Role:      storage.RoleAssistant,
		Text:      text,
		ExitCode:  &exitCode,
		Truncated: res.Truncated,
	}); err != nil && !errors.Is(err, storage.ErrNotFound) {
		// The session may have been deleted mid-run; the reply still goes out.
		s.logger.Warn("failed to store reply", "session_id", sess.ID, "error", err)
	}

	respondJSON(w, http.StatusOK, protocol.PromptResponse{
		Parts: []protocol.Part{protocol.TextPart(text)},
		Info: &protocol.ExecInfo{
			ExitCode:   res.ExitCode,
			Truncated:  res.Truncated,
			Aborted:    res.Aborted,
			Stream:     stream,
			DurationMs: res.Duration.Milliseconds(),
		},
	})
}

// handleAbort handles POST /session/{id}/abort.
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, protocol.AbortResponse{Aborted: s.registry.Abort(sess.ID)})
}

// lookupSession loads the {id} session or writes a 404.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*storage.Session, bool) {
	sess, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return sess, true
}

func (s *Server) sessionView(sess storage.Session) protocol.Session {
	return protocol.Session{
		ID:        sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt.UnixMilli(),
		UpdatedAt: sess.UpdatedAt.UnixMilli(),
		Running:   s.registry.Running(sess.ID),
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, protocol.ErrorResponse{Error: message})
}

// storeError marks a transcript write failure inside an admitted run.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }
