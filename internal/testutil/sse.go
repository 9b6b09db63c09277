package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// SSEEvent is a parsed Server-Sent Event.
type SSEEvent struct {
	Type string // event: field ("message" when absent, per spec)
	Data string // data: field, multi-line payloads joined with \n
}

// ParseSSEEvents parses an SSE stream body into structured events.
//
// Follows the W3C EventSource format:
//   - an empty line terminates an event
//   - multiple data: lines accumulate, joined with newline
//   - a missing event: field defaults the type to "message"
//   - comment lines (":") and id:/retry: fields are ignored
//
// Example:
//
//	events := testutil.ParseSSEEvents(t, rec.Body.String())
//	require.Equal(t, "chunk", events[0].Type)
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	var (
		events    []SSEEvent
		eventType string
		dataLines []string
	)

	flush := func() {
		if eventType == "" && len(dataLines) == 0 {
			return
		}
		if eventType == "" {
			eventType = "message"
		}
		events = append(events, SSEEvent{Type: eventType, Data: strings.Join(dataLines, "\n")})
		eventType = ""
		dataLines = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// comment, ignored
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimPrefix(strings.TrimPrefix(line, "event:"), " ")
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
			// ignored
		default:
			t.Fatalf("unexpected SSE line: %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanning SSE body: %v", err)
	}
	flush()

	return events
}

// FindEvent returns the first event of the given type, or nil.
func FindEvent(events []SSEEvent, eventType string) *SSEEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// FindAllEvents returns all events of the given type.
func FindAllEvents(events []SSEEvent, eventType string) []SSEEvent {
	var found []SSEEvent
	for _, e := range events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}

// EventTypes returns the event types in stream order. Handy for asserting
// phase ordering without caring about payloads.
func EventTypes(events []SSEEvent) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
