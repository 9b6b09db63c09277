package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vitrinehq/vitrine/internal/creation"
	"github.com/vitrinehq/vitrine/internal/studio"
)

// artifactCSP is the policy served with rendered artifact documents. The
// sandbox keeps the generated page scriptable but cut off from the host
// origin, and the source lists only allow what a self-contained document
// can legitimately use: its own inline code and embedded media.
const artifactCSP = "sandbox allow-scripts; default-src 'none'; " +
	"script-src 'unsafe-inline'; style-src 'unsafe-inline'; " +
	"img-src data: blob:; media-src data: blob:; font-src data:"

// creationHandler serves the stored-creation endpoints: history listing,
// single-record lookup, artifact rendering, and export/import.
type creationHandler struct {
	studio  *studio.Studio
	logger  *slog.Logger
	maxBody int64
}

// creationSummary is the list-view projection of a creation: everything
// except the HTML document and the input payload, which can be megabytes
// each and are only needed when a single record is opened.
type creationSummary struct {
	ID              uuid.UUID                 `json:"id"`
	Name            string                    `json:"name"`
	Kind            creation.Kind             `json:"kind"`
	CreatedAt       time.Time                 `json:"createdAt"`
	HasInput        bool                      `json:"hasInput"`
	Identifications []creation.Identification `json:"identifications,omitempty"`
}

func summarize(c *creation.Creation) creationSummary {
	return creationSummary{
		ID:              c.ID,
		Name:            c.Name,
		Kind:            c.Kind,
		CreatedAt:       c.CreatedAt,
		HasInput:        c.InputDataURL != "",
		Identifications: c.Identifications,
	}
}

// list returns the history, newest first.
func (h *creationHandler) list(w http.ResponseWriter, r *http.Request) {
	creations, err := h.studio.History(r.Context())
	if err != nil {
		h.logger.Error("list creations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load history", h.logger)
		return
	}

	summaries := make([]creationSummary, 0, len(creations))
	for _, c := range creations {
		summaries = append(summaries, summarize(c))
	}
	writeJSON(w, http.StatusOK, summaries, h.logger)
}

// get returns one full creation record, HTML and input payload included.
func (h *creationHandler) get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c, h.logger)
}

// artifact serves the stored HTML document itself, for the client to load
// in a sandboxed iframe. The response carries its own CSP so the document
// renders under the sandbox policy rather than the application's.
func (h *creationHandler) artifact(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", artifactCSP)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(c.HTML)); err != nil {
		h.logger.Debug("write artifact", "error", err)
	}
}

// export returns one creation as a standalone JSON download. The record is
// written bare, without the response envelope, so the file round-trips
// through import unchanged.
func (h *creationHandler) export(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		h.logger.Error("marshal creation", "id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to encode creation", h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "vitrine-"+c.ID.String()+".json"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("write export", "id", c.ID, "error", err)
	}
}

// importCreation accepts previously exported records, a single one or an
// array. ID collisions are not errors: the stored record wins and counts as
// skipped. Validation failure mid-array aborts the request; the records
// already imported stay, and re-importing the file is safe because existing
// IDs dedupe.
func (h *creationHandler) importCreation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "import exceeds the size limit", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to read request body", h.logger)
		return
	}

	records, err := creation.DecodeRecords(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be an exported creation or an array of them", h.logger)
		return
	}

	imported := 0
	summaries := make([]creationSummary, 0, len(records))
	for _, c := range records {
		stored, ok, err := h.studio.Import(r.Context(), c)
		if err != nil {
			if errors.Is(err, creation.ErrInvalidCreation) {
				writeError(w, http.StatusBadRequest, "invalid_creation", err.Error(), h.logger)
				return
			}
			h.logger.Error("import creation", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to import creation", h.logger)
			return
		}
		if ok {
			imported++
		}
		summaries = append(summaries, summarize(stored))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"creations": summaries,
		"imported":  imported,
		"skipped":   len(records) - imported,
	}, h.logger)
}

// lookup resolves the {id} path segment to a stored creation, writing the
// appropriate error response when it cannot.
func (h *creationHandler) lookup(w http.ResponseWriter, r *http.Request) (*creation.Creation, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "creation id must be a UUID", h.logger)
		return nil, false
	}

	c, err := h.studio.Creation(r.Context(), id)
	if err != nil {
		if errors.Is(err, creation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no creation with that id", h.logger)
			return nil, false
		}
		h.logger.Error("load creation", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load creation", h.logger)
		return nil, false
	}
	return c, true
}
