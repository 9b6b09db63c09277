package imagen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrinehq/vitrine/internal/generate"
	"github.com/vitrinehq/vitrine/internal/testutil"
)

// frame renders one SSE event the way the job endpoint emits them.
func frame(event, data string) string {
	return "event: " + event + "\ndata: " + data + "\n\n"
}

// jobServer is a fake job endpoint. The zero value accepts submissions and
// replays events; knobs switch on the failure modes.
type jobServer struct {
	submitStatus int      // non-zero: reject submissions with this code
	events       []string // SSE frames replayed on the event stream
	hang         bool     // keep the stream open after events, never completing

	submits atomic.Int32
	auth    atomic.Value // last Authorization header
	prompt  atomic.Value // last submitted prompt
}

func (s *jobServer) start(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		s.submits.Add(1)
		s.auth.Store(r.Header.Get("Authorization"))

		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.prompt.Store(req.Prompt)

		if s.submitStatus != 0 {
			http.Error(w, "job service unavailable", s.submitStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"job-1","status":"queued"}`)
	})
	mux.HandleFunc("GET /v1/jobs/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range s.events {
			fmt.Fprint(w, f)
			flusher.Flush()
		}
		if s.hang {
			<-r.Context().Done()
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, endpoint string, timeout time.Duration) *Client {
	t.Helper()

	c, err := New(Config{
		Endpoint:       endpoint,
		APIKey:         "primary-key",
		Timeout:        timeout,
		FallbackAPIKey: "fallback-key",
		FallbackModel:  "image-model",
		Logger:         testutil.DiscardLogger(),
	})
	require.NoError(t, err)
	return c
}

// stubFallback replaces the Gemini fallback with a canned result and counts
// invocations.
func stubFallback(c *Client, src string, err error) *atomic.Int32 {
	var calls atomic.Int32
	c.fallback = func(ctx context.Context, prompt string) (string, error) {
		calls.Add(1)
		return src, err
	}
	return &calls
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	base := Config{
		FallbackAPIKey: "key",
		FallbackModel:  "model",
		Logger:         testutil.DiscardLogger(),
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing fallback key", func(c *Config) { c.FallbackAPIKey = "" }, "fallback API key"},
		{"missing fallback model", func(c *Config) { c.FallbackModel = "" }, "fallback model"},
		{"missing logger", func(c *Config) { c.Logger = nil }, "logger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base
			tt.mutate(&cfg)
			_, err := New(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "https://img.example.com/", 0)
	assert.Equal(t, defaultTimeout, c.timeout)
	assert.Equal(t, "https://img.example.com", c.endpoint, "trailing slash should be trimmed")
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "", time.Second)
	_, err := c.Generate(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestGenerate_PrimaryCompletesWithURL(t *testing.T) {
	t.Parallel()

	srv := &jobServer{events: []string{
		frame("status", `{"status":"rendering"}`),
		frame("completed", `{"url":"https://cdn.example.com/img.png"}`),
	}}
	c := newTestClient(t, srv.start(t).URL, 5*time.Second)
	fallbackCalls := stubFallback(c, "", errors.New("fallback should not run"))

	src, err := c.Generate(context.Background(), "a fox in watercolor")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/img.png", src)
	assert.Zero(t, fallbackCalls.Load())

	assert.Equal(t, "Bearer primary-key", srv.auth.Load())
	assert.Equal(t, "a fox in watercolor", srv.prompt.Load())
}

func TestGenerate_PrimaryCompletesWithBase64(t *testing.T) {
	t.Parallel()

	srv := &jobServer{events: []string{
		frame("completed", `{"b64":"aGVsbG8=","mime":"image/jpeg"}`),
	}}
	c := newTestClient(t, srv.start(t).URL, 5*time.Second)
	stubFallback(c, "", errors.New("fallback should not run"))

	src, err := c.Generate(context.Background(), "neon city")
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", src)
}

func TestGenerate_Base64DefaultsToPNG(t *testing.T) {
	t.Parallel()

	srv := &jobServer{events: []string{
		frame("completed", `{"b64":"aGVsbG8="}`),
	}}
	c := newTestClient(t, srv.start(t).URL, 5*time.Second)
	stubFallback(c, "", errors.New("fallback should not run"))

	src, err := c.Generate(context.Background(), "neon city")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(src, "data:image/png;base64,"), "src = %q", src)
}

func TestGenerate_JobErrorFallsBack(t *testing.T) {
	t.Parallel()

	srv := &jobServer{events: []string{
		frame("status", `{"status":"rendering"}`),
		frame("error", `{"error":"renderer crashed"}`),
	}}
	c := newTestClient(t, srv.start(t).URL, 5*time.Second)
	fallbackCalls := stubFallback(c, "data:image/png;base64,ZmFrZQ==", nil)

	src, err := c.Generate(context.Background(), "a fox")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,ZmFrZQ==", src)
	assert.Equal(t, int32(1), fallbackCalls.Load())
}

func TestGenerate_SubmitFailureFallsBack(t *testing.T) {
	t.Parallel()

	srv := &jobServer{submitStatus: http.StatusInternalServerError}
	c := newTestClient(t, srv.start(t).URL, 5*time.Second)
	fallbackCalls := stubFallback(c, "https://fallback.example.com/img.png", nil)

	src, err := c.Generate(context.Background(), "a fox")
	require.NoError(t, err)
	assert.Equal(t, "https://fallback.example.com/img.png", src)
	assert.Equal(t, int32(1), fallbackCalls.Load())
}

// A stream that never completes must not hold the request past the timeout:
// the client gives up and the fallback result is returned.
func TestGenerate_TimeoutFallsBack(t *testing.T) {
	t.Parallel()

	srv := &jobServer{
		events: []string{frame("status", `{"status":"rendering"}`)},
		hang:   true,
	}
	c := newTestClient(t, srv.start(t).URL, 200*time.Millisecond)
	fallbackCalls := stubFallback(c, "data:image/png;base64,ZmFrZQ==", nil)

	start := time.Now()
	src, err := c.Generate(context.Background(), "a fox")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,ZmFrZQ==", src)
	assert.Equal(t, int32(1), fallbackCalls.Load())
	assert.Less(t, elapsed, 3*time.Second, "timeout should fire promptly")
}

func TestGenerate_StreamEndsWithoutCompletionFallsBack(t *testing.T) {
	t.Parallel()

	srv := &jobServer{events: []string{
		frame("status", `{"status":"queued"}`),
	}}
	c := newTestClient(t, srv.start(t).URL, 5*time.Second)
	fallbackCalls := stubFallback(c, "data:image/png;base64,ZmFrZQ==", nil)

	src, err := c.Generate(context.Background(), "a fox")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,ZmFrZQ==", src)
	assert.Equal(t, int32(1), fallbackCalls.Load())
}

func TestGenerate_EmptyCompletionFallsBack(t *testing.T) {
	t.Parallel()

	srv := &jobServer{events: []string{
		frame("completed", `{}`),
	}}
	c := newTestClient(t, srv.start(t).URL, 5*time.Second)
	fallbackCalls := stubFallback(c, "data:image/png;base64,ZmFrZQ==", nil)

	_, err := c.Generate(context.Background(), "a fox")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fallbackCalls.Load())
}

func TestGenerate_NoEndpointSkipsPrimary(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "", time.Second)
	fallbackCalls := stubFallback(c, "data:image/png;base64,ZmFrZQ==", nil)

	src, err := c.Generate(context.Background(), "a fox")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,ZmFrZQ==", src)
	assert.Equal(t, int32(1), fallbackCalls.Load())
}

func TestGenerate_FallbackErrorSurfaces(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "", time.Second)
	stubFallback(c, "", errors.New("connection reset by peer"))

	_, err := c.Generate(context.Background(), "a fox")
	require.Error(t, err)
	assert.NotErrorIs(t, err, generate.ErrKeyReset)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestGenerate_FallbackQuotaErrorGates(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "", time.Second)
	stubFallback(c, "", errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED"))

	_, err := c.Generate(context.Background(), "a fox")
	require.Error(t, err)
	assert.ErrorIs(t, err, generate.ErrKeyReset)
}

func TestWrapPage(t *testing.T) {
	t.Parallel()

	page, err := WrapPage("a <script>mean</script> prompt", "data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, `src="data:image/png;base64,aGVsbG8="`)
	assert.NotContains(t, page, "ZgotmplZ", "data URL must survive template escaping")
	assert.Contains(t, page, "&lt;script&gt;")
	assert.NotContains(t, page, "<script>")
}

func TestWrapPage_EmptyPrompt(t *testing.T) {
	t.Parallel()

	page, err := WrapPage("  ", "https://cdn.example.com/img.png")
	require.NoError(t, err)
	assert.Contains(t, page, "<title>Generated image</title>")
	assert.Contains(t, page, `src="https://cdn.example.com/img.png"`)
}
