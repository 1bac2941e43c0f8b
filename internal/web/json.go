package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/sweeney/ventilator/internal/command"
)

const (
	maxCommandBytes     = 4096
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// CommandResponse is the JSON reply to a posted command.
type CommandResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// AlarmsJSON is the JSON representation of the alarm history.
type AlarmsJSON struct {
	Alarms []json.RawMessage `json:"alarms"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// handleCommand queues an operator request. It is accepted once queued;
// range errors surface in the next machine state, which keeps the staged
// settings unchanged.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.opts.Commands == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, CommandResponse{Error: "POST required"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Error: err.Error()})
		return
	}
	req, err := command.Parse(body, "http")
	if err != nil {
		code := http.StatusBadRequest
		if !errors.Is(err, command.ErrInvalidRequest) {
			code = http.StatusInternalServerError
		}
		writeJSON(w, code, CommandResponse{Error: err.Error()})
		return
	}
	if !command.Offer(s.opts.Commands, req) {
		writeJSON(w, http.StatusServiceUnavailable, CommandResponse{Error: "command queue full"})
		return
	}
	writeJSON(w, http.StatusAccepted, CommandResponse{Accepted: true})
}

func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		http.NotFound(w, r)
		return
	}

	limit := int64(defaultHistoryLimit)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 || n > maxHistoryLimit {
			http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	alarms, err := s.opts.History.AlarmHistory(r.Context(), limit)
	if err != nil {
		http.Error(w, "alarm history unavailable", http.StatusBadGateway)
		return
	}
	if alarms == nil {
		alarms = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, AlarmsJSON{Alarms: alarms})
}
