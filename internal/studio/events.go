package studio

import (
	"context"

	"github.com/vitrinehq/vitrine/internal/creation"
)

// EventType names the kinds of progress events a pipeline emits.
type EventType string

const (
	// EventPhase marks entry into a pipeline phase.
	EventPhase EventType = "phase"
	// EventIdentify carries the vision labels detected in the input image.
	EventIdentify EventType = "identify"
	// EventChunk carries one streamed fragment of raw model output.
	EventChunk EventType = "chunk"
	// EventResult carries the finished Creation.
	EventResult EventType = "result"
)

// Pipeline phases, in the order they run. Identification only happens when
// an image is attached.
const (
	PhasePreparing   = "preparing"
	PhaseIdentifying = "identifying"
	PhaseGenerating  = "generating"
	PhaseSaving      = "saving"
)

// Event is one progress notification from a generation pipeline. Exactly the
// field matching Type is set.
type Event struct {
	Type       EventType
	Phase      string
	Detections []creation.Identification
	Chunk      string
	Creation   *creation.Creation
}

// Emitter receives pipeline events. Returning an error aborts the pipeline;
// the usual cause is a disconnected client.
type Emitter func(ctx context.Context, ev Event) error

func phaseEvent(name string) Event {
	return Event{Type: EventPhase, Phase: name}
}

func identifyEvent(detections []creation.Identification) Event {
	return Event{Type: EventIdentify, Detections: detections}
}

func chunkEvent(chunk string) Event {
	return Event{Type: EventChunk, Chunk: chunk}
}

func resultEvent(c *creation.Creation) Event {
	return Event{Type: EventResult, Creation: c}
}

// discardEmitter stands in when the caller does not care about progress.
func discardEmitter(context.Context, Event) error { return nil }
