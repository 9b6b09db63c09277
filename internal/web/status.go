package web

import (
	"log/slog"
	"net/http"

	"github.com/vitrinehq/vitrine/internal/studio"
)

// StatusInfo describes the running build. It is reported verbatim on the
// status endpoint so the client can show which models it is talking to.
type StatusInfo struct {
	Version    string `json:"version"`
	Model      string `json:"model"`
	ImageModel string `json:"imageModel"`
}

// statusPayload is the status endpoint response body.
type statusPayload struct {
	StatusInfo
	Gate      studio.GateStatus `json:"gate"`
	Creations int               `json:"creations"`
}

// statusHandler serves application state: build info, the upgrade gate,
// and the gate-clear control.
type statusHandler struct {
	studio *studio.Studio
	logger *slog.Logger
	info   StatusInfo
}

// status reports build info, the gate state, and the history size. A store
// failure degrades the count to zero rather than failing the endpoint; the
// gate state is what clients poll this for.
func (h *statusHandler) status(w http.ResponseWriter, r *http.Request) {
	count, err := h.studio.Count(r.Context())
	if err != nil {
		h.logger.Warn("count creations", "error", err)
		count = 0
	}

	writeJSON(w, http.StatusOK, statusPayload{
		StatusInfo: h.info,
		Gate:       h.studio.GateStatus(),
		Creations:  count,
	}, h.logger)
}

// clearGate lifts the upgrade gate, typically after the operator has
// rotated the API key or raised the quota.
func (h *statusHandler) clearGate(w http.ResponseWriter, r *http.Request) {
	h.studio.ClearGate()
	writeJSON(w, http.StatusOK, h.studio.GateStatus(), h.logger)
}
