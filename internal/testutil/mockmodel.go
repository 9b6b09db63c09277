package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModelName is the provider-qualified name the mock registers under.
const MockModelName = "mock/test-model"

// MockModel provides deterministic model responses for testing.
// It matches user message content against registered patterns and returns
// the corresponding scripted response, streamed chunk by chunk when the
// caller supplied a streaming callback.
//
// Thread-safe for concurrent use.
type MockModel struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	calls    []ModelCall
}

type mockRule struct {
	pattern string   // substring match in user message, lowercase
	chunks  []string // streamed one per callback invocation
	err     error    // returned instead of a response when set
}

// ModelCall records a single call to the mock model.
type ModelCall struct {
	UserText   string   // concatenated text parts of the last user message
	System     string   // system prompt, if any
	MediaTypes []string // content types of media parts in the last user message
	Response   string   // response text returned ("" for error rules)
}

// NewMockModel creates a mock model with the given fallback response.
// The fallback is returned when no pattern matches.
func NewMockModel(fallback string) *MockModel {
	return &MockModel{fallback: fallback}
}

// AddResponse registers a pattern-response pair. When a user message
// contains the pattern (case-insensitive), the response is returned as a
// single chunk. Patterns are checked in registration order; first match wins.
func (m *MockModel) AddResponse(pattern, response string) {
	m.AddStreamedResponse(pattern, response)
}

// AddStreamedResponse registers a response delivered as multiple stream
// chunks. The final response text is the concatenation of all chunks.
func (m *MockModel) AddStreamedResponse(pattern string, chunks ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern: strings.ToLower(pattern),
		chunks:  chunks,
	})
}

// AddError registers a pattern that makes the model call fail with err.
func (m *MockModel) AddError(pattern string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern: strings.ToLower(pattern),
		err:     err,
	})
}

// Calls returns a copy of all recorded calls.
func (m *MockModel) Calls() []ModelCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]ModelCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// LastCall returns the most recent recorded call, or nil when none exist.
func (m *MockModel) LastCall() *ModelCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	last := m.calls[len(m.calls)-1]
	return &last
}

// Reset clears all recorded calls (keeps registered rules).
func (m *MockModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Register registers the mock as a Genkit model and returns a reference.
func (m *MockModel) Register(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, MockModelName, &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
			Media:      true,
		},
	}, m.generate)
}

// generate is the Genkit model function.
func (m *MockModel) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	userText, mediaTypes := lastUserContent(req)
	system := systemText(req)

	m.mu.Lock()
	var matched *mockRule
	lower := strings.ToLower(userText)
	for i := range m.rules {
		if strings.Contains(lower, m.rules[i].pattern) {
			matched = &m.rules[i]
			break
		}
	}

	if matched != nil && matched.err != nil {
		m.calls = append(m.calls, ModelCall{
			UserText:   userText,
			System:     system,
			MediaTypes: mediaTypes,
		})
		err := matched.err
		m.mu.Unlock()
		return nil, err
	}

	chunks := []string{m.fallback}
	if matched != nil {
		chunks = matched.chunks
	}
	full := strings.Join(chunks, "")

	m.calls = append(m.calls, ModelCall{
		UserText:   userText,
		System:     system,
		MediaTypes: mediaTypes,
		Response:   full,
	})
	m.mu.Unlock()

	if cb != nil {
		for _, chunk := range chunks {
			if err := cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{ai.NewTextPart(chunk)},
			}); err != nil {
				return nil, err
			}
		}
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(full)},
		},
	}, nil
}

// lastUserContent extracts the text and media content types of the last
// user message.
func lastUserContent(req *ai.ModelRequest) (string, []string) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != ai.RoleUser {
			continue
		}
		var sb strings.Builder
		var media []string
		for _, p := range req.Messages[i].Content {
			switch {
			case p.IsText():
				sb.WriteString(p.Text)
			case p.IsMedia():
				media = append(media, p.ContentType)
			}
		}
		return sb.String(), media
	}
	return "", nil
}

// systemText extracts the system message text, if present.
func systemText(req *ai.ModelRequest) string {
	for _, msg := range req.Messages {
		if msg.Role == ai.RoleSystem {
			return msg.Text()
		}
	}
	return ""
}
