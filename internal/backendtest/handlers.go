package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const isoFormat = "2006-01-02T15:04:05.000000"

// Responder produces the assistant reply for a chat request.
type Responder func(ctx context.Context, sessionID, message string) (string, error)

// Indexer accepts an uploaded document.
type Indexer func(ctx context.Context, filename string, data []byte) error

// StatusError lets a Responder or Indexer pick the HTTP status it fails with.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// EchoResponder replies with the user's message.
func EchoResponder(_ context.Context, _ string, message string) (string, error) {
	return "echo: " + message, nil
}

type Handler struct {
	store     *SQLiteStore
	responder Responder
	indexer   Indexer

	chatRequests   atomic.Int64
	uploadRequests atomic.Int64
}

func NewHandler(s *SQLiteStore, responder Responder, indexer Indexer) *Handler {
	if responder == nil {
		responder = EchoResponder
	}
	if indexer == nil {
		indexer = func(context.Context, string, []byte) error { return nil }
	}
	return &Handler{store: s, responder: responder, indexer: indexer}
}

type sessionResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at,omitempty"`
}

type messageResponse struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func (h *Handler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions()
	if err != nil {
		log.Error().Err(err).Msg("backendtest: list sessions")
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, sessionResponse{ID: s.ID, Title: s.Title, CreatedAt: s.CreatedAt.Format(isoFormat)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.CreateSession("")
	if err != nil {
		log.Error().Err(err).Msg("backendtest: create session")
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: session.ID, Title: session.Title})
}

func (h *Handler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	deleted, err := h.store.DeleteSession(sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("backendtest: delete session")
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messages, err := h.store.GetMessages(sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("backendtest: list messages")
		writeError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	resp := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, messageResponse{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt.Format(isoFormat)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	h.chatRequests.Add(1)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Message == "" || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "Message or sessionId missing")
		return
	}

	reply, err := h.responder(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := h.store.AppendExchange(req.SessionID, req.Message, reply); err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("backendtest: store exchange")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

func (h *Handler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	h.uploadRequests.Add(1)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if header.Filename == "" || filename == "." || filename == "/" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file: "+err.Error())
		return
	}

	if err := h.indexer(r.Context(), filename, data); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			writeFailure(w, err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to index: "+err.Error())
		return
	}
	if err := h.store.CreateDocument(filename, header.Header.Get("Content-Type"), len(data)); err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("backendtest: store document")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("File %s indexed successfully", filename)})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments()
	db := "operational"
	if err != nil {
		db = "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"db":        db,
		"rag_ready": len(docs) > 0,
	})
}

func writeFailure(w http.ResponseWriter, err error) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Message == "" {
			// Exercise clients that must cope without an error body.
			w.WriteHeader(statusErr.Status)
			return
		}
		writeError(w, statusErr.Status, statusErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("backendtest: encode response")
	}
}
