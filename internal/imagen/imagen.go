// Package imagen generates images through a hosted job endpoint, falling
// back to a direct Gemini image-model call when the primary path fails.
//
// The primary exchange is job-based: submit a prompt, receive a job ID, then
// follow the job's server-sent event stream until it reports completion. The
// whole exchange is bounded by a single timeout; expiry, a stream error, or a
// failed-job event all fail the primary path and trigger the fallback.
package imagen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vitrinehq/vitrine/internal/generate"
)

const (
	// defaultTimeout bounds the whole primary exchange: submit, subscribe,
	// and completion.
	defaultTimeout = 60 * time.Second

	// maxEventLine caps a single SSE data line. Completion events can carry
	// multi-megabyte base64 payloads in one line.
	maxEventLine = 16 << 20

	// maxErrorBody caps how much of an HTTP error body ends up in messages.
	maxErrorBody = 512
)

// ErrEmptyPrompt is returned when Generate is called without a prompt.
var ErrEmptyPrompt = errors.New("image prompt is empty")

// fallbackFunc generates an image source when the primary path fails.
type fallbackFunc func(ctx context.Context, prompt string) (string, error)

// Config holds the settings for an image generation client.
type Config struct {
	// Endpoint is the primary job endpoint base URL. Empty disables the
	// primary path; generation then goes straight to the fallback model.
	Endpoint string

	// APIKey authenticates against the primary endpoint. Optional.
	APIKey string

	// Timeout bounds the whole primary exchange. Zero means 60s.
	Timeout time.Duration

	// FallbackAPIKey is the Gemini API key for the fallback model.
	FallbackAPIKey string

	// FallbackModel is the Gemini image model name.
	FallbackModel string

	// Logger records path selection and failures.
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.FallbackAPIKey == "" {
		return errors.New("fallback API key is required")
	}
	if c.FallbackModel == "" {
		return errors.New("fallback model is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Client generates images, preferring the configured job endpoint and
// falling back to the Gemini image model.
type Client struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	http     *http.Client
	fallback fallbackFunc
	logger   *slog.Logger
}

// New creates an image generation client from the config.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid imagen config: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	fb := &genaiFallback{apiKey: cfg.FallbackAPIKey, model: cfg.FallbackModel}

	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		timeout:  timeout,
		// No client-level timeout: the per-call context bounds the
		// exchange, and a client timeout would cut event streams short.
		http:     &http.Client{},
		fallback: fb.generate,
		logger:   cfg.Logger,
	}, nil
}

// Generate produces an image for the prompt and returns its source: a remote
// URL or a data URL, ready for an <img> tag.
//
// Primary-path failures are logged and absorbed by the fallback; only the
// fallback's error surfaces, classified for auth/quota gating.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	if c.endpoint != "" {
		src, err := c.primary(ctx, prompt)
		if err == nil {
			return src, nil
		}
		c.logger.Warn("primary image path failed, using fallback",
			"endpoint", c.endpoint,
			"error", err)
	} else {
		c.logger.Debug("no image endpoint configured, using fallback model")
	}

	src, err := c.fallback(ctx, prompt)
	if err != nil {
		return "", generate.Classify(fmt.Errorf("fallback image generation: %w", err))
	}
	return src, nil
}

// primary runs the job-based exchange: submit, then follow the event stream
// until completion. The context carries the exchange-wide deadline, so an
// expired deadline tears down the event stream connection as well.
func (c *Client) primary(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	jobID, err := c.submit(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}

	src, err := c.subscribe(ctx, jobID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("job %s did not complete within %s", jobID, c.timeout)
		}
		return "", fmt.Errorf("job %s: %w", jobID, err)
	}
	return src, nil
}

// submitResponse is the job creation reply.
type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// jobEvent is the payload of a single event on the job stream.
type jobEvent struct {
	Status string `json:"status,omitempty"`
	URL    string `json:"url,omitempty"`
	B64    string `json:"b64,omitempty"`
	MIME   string `json:"mime,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (c *Client) submit(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, errorBody(resp.Body))
	}

	var sub submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if sub.ID == "" {
		return "", errors.New("endpoint returned no job ID")
	}

	c.logger.Debug("image job submitted", "job_id", sub.ID, "status", sub.Status)
	return sub.ID, nil
}

// subscribe follows the job's event stream and returns the image source from
// the completion event. The response body is closed on every exit path, so
// the connection is released on success, stream error, and timeout alike.
func (c *Client) subscribe(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/v1/jobs/"+jobID+"/events", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("event stream returned %d: %s", resp.StatusCode, errorBody(resp.Body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)

	var (
		eventName string
		dataLines []string
	)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if len(dataLines) > 0 {
				src, done, err := c.handleEvent(jobID, eventName, strings.Join(dataLines, "\n"))
				if done {
					return src, err
				}
			}
			eventName = ""
			dataLines = nil
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// Comment line, keep-alive.
		}
	}
	if err := scanner.Err(); err != nil {
		// The deadline aborts the connection mid-read; report the deadline
		// rather than the transport error it caused.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("read event stream: %w", err)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", errors.New("event stream ended without completion")
}

// handleEvent interprets one event from the job stream. done reports whether
// the stream is finished, in which case src or err carries the outcome.
func (c *Client) handleEvent(jobID, name, data string) (src string, done bool, err error) {
	var ev jobEvent
	if jsonErr := json.Unmarshal([]byte(data), &ev); jsonErr != nil {
		c.logger.Debug("ignoring malformed job event", "job_id", jobID, "event", name)
		return "", false, nil
	}

	switch name {
	case "completed":
		switch {
		case ev.URL != "":
			return ev.URL, true, nil
		case ev.B64 != "":
			mime := ev.MIME
			if mime == "" {
				mime = "image/png"
			}
			return "data:" + mime + ";base64," + ev.B64, true, nil
		default:
			return "", true, errors.New("completion event carried no image")
		}
	case "error":
		msg := ev.Error
		if msg == "" {
			msg = data
		}
		return "", true, fmt.Errorf("job failed: %s", msg)
	case "status", "":
		c.logger.Debug("image job progress", "job_id", jobID, "status", ev.Status)
		return "", false, nil
	default:
		return "", false, nil
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func errorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(b) == 0 {
		return "(no body)"
	}
	return strings.TrimSpace(string(b))
}

// dataURL encodes raw image bytes as a data URL.
func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
