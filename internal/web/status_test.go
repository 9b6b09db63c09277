package web

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatus_ReportsBuildInfoAndHistorySize(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	w := do(srv, http.MethodGet, "/api/v1/status", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var payload statusPayload
	decodeData(t, w, &payload)

	if payload.Version != "test" || payload.Model != "mock-model" {
		t.Errorf("build info = %+v, want the configured StatusInfo", payload.StatusInfo)
	}
	if payload.Gate.Gated {
		t.Error("gate.gated = true, want false on a fresh server")
	}
	if payload.Creations != 0 {
		t.Errorf("creations = %d, want 0", payload.Creations)
	}

	// The count tracks generations.
	stream(t, srv, "/api/v1/generations/stream", `{"prompt":"one"}`)
	w = do(srv, http.MethodGet, "/api/v1/status", "")
	decodeData(t, w, &payload)
	if payload.Creations != 1 {
		t.Errorf("creations = %d, want 1 after a generation", payload.Creations)
	}
}

func TestStatus_GateLifecycle(t *testing.T) {
	t.Parallel()

	srv, mock, _ := newTestServer(t)
	mock.AddError("broken page", errors.New("API key not valid. Please pass a valid API key."))

	events := stream(t, srv, "/api/v1/generations/stream", `{"prompt":"broken page"}`)
	if code := errorCode(t, events); code != "UPGRADE_REQUIRED" {
		t.Fatalf("error code = %q, want %q", code, "UPGRADE_REQUIRED")
	}

	// Status now reports the gate with its reason.
	var payload statusPayload
	w := do(srv, http.MethodGet, "/api/v1/status", "")
	decodeData(t, w, &payload)
	if !payload.Gate.Gated {
		t.Fatal("gate.gated = false, want true after an auth error")
	}
	if payload.Gate.Reason == "" {
		t.Error("gate.reason is empty, want the classified failure")
	}
	if payload.Gate.Since.IsZero() {
		t.Error("gate.since is zero, want the trip time")
	}

	// Clearing the gate reopens generation.
	w = do(srv, http.MethodPost, "/api/v1/gate/clear", "")
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d, want %d", w.Code, http.StatusOK)
	}
	var cleared struct {
		Gated bool `json:"gated"`
	}
	decodeData(t, w, &cleared)
	if cleared.Gated {
		t.Error("gate.gated = true after clear, want false")
	}

	c := resultCreation(t, stream(t, srv, "/api/v1/generations/stream", `{"prompt":"works again"}`))
	if c.HTML == "" {
		t.Error("generation after clear should produce a creation")
	}
}
