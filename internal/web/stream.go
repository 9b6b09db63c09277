package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vitrinehq/vitrine/internal/creation"
	"github.com/vitrinehq/vitrine/internal/generate"
	"github.com/vitrinehq/vitrine/internal/imagen"
	"github.com/vitrinehq/vitrine/internal/input"
	"github.com/vitrinehq/vitrine/internal/studio"
	"github.com/vitrinehq/vitrine/internal/web/sse"
)

// SSE event types for generation streaming.
const (
	EventPhase    = "phase"    // Pipeline phase transition
	EventIdentify = "identify" // Vision labels for the attached image
	EventChunk    = "chunk"    // Partial raw model output
	EventResult   = "result"   // The finished creation
	EventDone     = "done"     // Stream completed successfully
	EventError    = "error"    // Error occurred during streaming
)

// PhasePayload is the SSE data payload for phase transitions.
type PhasePayload struct {
	Phase string `json:"phase"`
}

// IdentifyPayload is the SSE data payload carrying vision detections.
type IdentifyPayload struct {
	Detections []creation.Identification `json:"detections"`
}

// ChunkPayload is the SSE data payload for streaming text chunks.
type ChunkPayload struct {
	Text string `json:"text"`
}

// ResultPayload is the SSE data payload carrying the stored creation.
type ResultPayload struct {
	Creation *creation.Creation `json:"creation"`
}

// streamHandler serves the two generation endpoints. Both are POST-to-SSE:
// the client submits a request body and reads progress events off the
// response until done or error.
type streamHandler struct {
	studio  *studio.Studio
	logger  *slog.Logger
	maxBody int64
}

// generation streams an artifact build: phases, optional identify labels,
// raw output chunks, and finally the stored creation.
func (h *streamHandler) generation(w http.ResponseWriter, r *http.Request) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req studio.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			_ = writer.WriteError("INPUT_TOO_LARGE", "request exceeds the size limit")
			return
		}
		_ = writer.WriteError("INVALID_REQUEST", "invalid request body")
		return
	}

	h.logger.Debug("generation stream started",
		"prompt_len", len(req.Prompt),
		"attachments", len(req.Attachments),
		"page_url", req.PageURL != "")

	if _, err := h.studio.Generate(ctx, req, h.emitTo(writer)); err != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected during generation")
			return
		}
		h.streamError(writer, err)
		return
	}

	_ = writer.WriteDone(ctx)
}

// image streams an image build. The pipeline is shorter but the contract is
// the same: phase events, a result, then done.
func (h *streamHandler) image(w http.ResponseWriter, r *http.Request) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req studio.ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = writer.WriteError("INVALID_REQUEST", "invalid request body")
		return
	}

	h.logger.Debug("image stream started", "prompt_len", len(req.Prompt))

	if _, err := h.studio.GenerateImage(ctx, req, h.emitTo(writer)); err != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected during image generation")
			return
		}
		h.streamError(writer, err)
		return
	}

	_ = writer.WriteDone(ctx)
}

// emitTo adapts an SSE writer into a pipeline emitter. A write failure
// propagates back and aborts the pipeline.
func (h *streamHandler) emitTo(writer *sse.Writer) studio.Emitter {
	return func(ctx context.Context, ev studio.Event) error {
		switch ev.Type {
		case studio.EventPhase:
			return writer.WriteEvent(ctx, EventPhase, PhasePayload{Phase: ev.Phase})
		case studio.EventIdentify:
			return writer.WriteEvent(ctx, EventIdentify, IdentifyPayload{Detections: ev.Detections})
		case studio.EventChunk:
			return writer.WriteEvent(ctx, EventChunk, ChunkPayload{Text: ev.Chunk})
		case studio.EventResult:
			return writer.WriteEvent(ctx, EventResult, ResultPayload{Creation: ev.Creation})
		}
		return nil
	}
}

// streamError maps pipeline errors to SSE error events. UPGRADE_REQUIRED is
// the one the client treats specially: it switches the whole app into the
// gated state.
func (h *streamHandler) streamError(writer *sse.Writer, err error) {
	code := "GENERATION_FAILED"

	switch {
	case errors.Is(err, studio.ErrGated), errors.Is(err, generate.ErrKeyReset):
		code = "UPGRADE_REQUIRED"
	case errors.Is(err, generate.ErrEmptyRequest), errors.Is(err, imagen.ErrEmptyPrompt):
		code = "EMPTY_REQUEST"
	case errors.Is(err, input.ErrTooLarge):
		code = "INPUT_TOO_LARGE"
	case errors.Is(err, input.ErrUnsupportedType), errors.Is(err, input.ErrEmptyInput):
		code = "UNSUPPORTED_INPUT"
	case errors.Is(err, input.ErrPageFetch):
		code = "PAGE_FETCH_FAILED"
	}

	if code == "GENERATION_FAILED" {
		h.logger.Error("generation stream failed", "error", err)
	} else {
		h.logger.Warn("generation stream rejected", "code", code, "error", err)
	}

	_ = writer.WriteError(code, err.Error())
}
