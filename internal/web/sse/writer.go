// Package sse provides Server-Sent Events utilities for streaming responses.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Writer wraps an http.ResponseWriter for SSE streaming with JSON payloads.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter creates a new SSE writer and sets appropriate headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flusher interface")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent sends a named event with a JSON-encoded payload.
// SSE format: "event: <type>\ndata: <json>\n\n".
func (w *Writer) WriteEvent(ctx context.Context, event string, payload any) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context canceled: %w", ctx.Err())
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if _, err := fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// WriteDone sends the terminal done event.
func (w *Writer) WriteDone(ctx context.Context) error {
	return w.WriteEvent(ctx, "done", struct{}{})
}

// WriteError sends an error event. Best effort: the stream is usually about
// to close, so the write error is returned for logging only.
func (w *Writer) WriteError(code, message string) error {
	payload := map[string]string{"code": code, "message": message}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if _, err := fmt.Fprintf(w.w, "event: error\ndata: %s\n\n", data); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	w.flusher.Flush()
	return nil
}
