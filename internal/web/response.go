package web

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// Error is the JSON error payload inside the response envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// envelope is the response contract: success responses carry data, error
// responses carry error, never both.
type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// writeJSON writes a success response wrapping data in the envelope.
// Uses buffer-first strategy so headers are only sent after successful
// encoding; an encoding failure can still produce a proper 500.
func writeJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(envelope{Data: data}); err != nil {
		logger.Error("encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("write response body", "error", err)
	}
}

// writeError writes an error response in the envelope.
func writeError(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	buf := new(bytes.Buffer)
	payload := envelope{Error: &Error{Code: code, Message: message, Status: status}}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		logger.Error("encode JSON error response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Debug("write error response body", "error", err)
	}
}
