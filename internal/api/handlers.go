package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
	"github.com/eliteGoblin/focusd/kioskctl/internal/usecase"
)

const (
	// maxBodyBytes bounds command argument payloads.
	maxBodyBytes = 64 << 10

	defaultJournalLimit = 50
)

type errorResponse struct {
	Error string `json:"error"`
}

type journalEntry struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Subject   string `json:"subject"`
	Outcome   string `json:"outcome,omitempty"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Health reports that the daemon is serving.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Command runs POST /v1/{channel}/{method}. The body, when present, is a
// JSON object of string arguments.
func (h *Handlers) Command(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cmd := usecase.Command{Channel: vars["channel"], Method: vars["method"]}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read body"})
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &cmd.Args); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "arguments must be a JSON object of strings"})
			return
		}
	}

	reply, err := h.submitter.Submit(r.Context(), cmd)
	switch {
	case errors.Is(err, usecase.ErrNotImplemented):
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: err.Error()})
		return
	case err != nil:
		h.logger.Error("command failed",
			zap.String("channel", cmd.Channel),
			zap.String("method", cmd.Method),
			zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// Journal returns recent journal entries, newest first.
func (h *Handlers) Journal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "journal disabled"})
		return
	}

	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := h.journal.Recent(limit)
	if err != nil {
		h.logger.Error("failed to read journal", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read journal"})
		return
	}

	out := make([]journalEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, toJournalEntry(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func toJournalEntry(e domain.JournalEntry) journalEntry {
	return journalEntry{
		ID:        e.ID,
		Kind:      e.Kind,
		Subject:   e.Subject,
		Outcome:   e.Outcome,
		Detail:    e.Detail,
		CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
