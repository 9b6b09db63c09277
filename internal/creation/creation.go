package creation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Kind distinguishes how a creation was produced.
type Kind string

const (
	// KindArtifact is an interactive HTML document generated from a prompt.
	KindArtifact Kind = "artifact"
	// KindImage is a generated image wrapped in a templated HTML page.
	KindImage Kind = "image"
)

// maxNameLen bounds the display name derived from a prompt.
const maxNameLen = 80

// Creation is one persisted generation result.
//
// A Creation is written once, on successful generation or import, and never
// mutated afterwards. Records leave the history only through eviction when
// the store is over its configured cap.
//
// Zero values:
//   - ID: uuid.Nil (invalid, must be generated or imported)
//   - Name: "" (invalid, required)
//   - HTML: "" (invalid, required)
//   - Kind: "" (normalized to KindArtifact on validation)
//   - InputDataURL: "" (no original input attached)
//   - Identifications: nil (no vision labels)
type Creation struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	HTML string    `json:"html"`
	Kind Kind      `json:"kind"`

	// InputDataURL holds the original input as a data URL so the preview can
	// show it side by side with the artifact.
	InputDataURL string `json:"inputDataUrl,omitempty"`
	InputMIME    string `json:"inputMime,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	// Identifications are the vision labels detected in the original input,
	// when an image was attached and identification succeeded.
	Identifications []Identification `json:"identifications,omitempty"`
}

// Identification is a single labeled element detected in an input image.
// Produced as a batch per image; attached to its Creation; read-only.
type Identification struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
}

// New builds a Creation with a fresh ID and a UTC timestamp.
// The display name is derived from the prompt.
func New(prompt, html string, kind Kind) *Creation {
	return &Creation{
		ID:        uuid.New(),
		Name:      DeriveName(prompt),
		HTML:      html,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// DeriveName turns a prompt into a short display name: first line, trimmed
// to maxNameLen runes.
func DeriveName(prompt string) string {
	name := strings.TrimSpace(prompt)
	if i := strings.IndexByte(name, '\n'); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if name == "" {
		return "Untitled creation"
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		runes := []rune(name)
		name = strings.TrimSpace(string(runes[:maxNameLen-1])) + "…"
	}
	return name
}

// Validate checks that a record (typically an imported one) is usable.
// An empty Kind is normalized to KindArtifact for compatibility with exports
// that predate the image path.
func (c *Creation) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidCreation)
	}
	if c.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidCreation)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidCreation)
	}
	if strings.TrimSpace(c.HTML) == "" {
		return fmt.Errorf("%w: missing html", ErrInvalidCreation)
	}
	switch c.Kind {
	case KindArtifact, KindImage:
	case "":
		c.Kind = KindArtifact
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCreation, c.Kind)
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing createdAt", ErrInvalidCreation)
	}
	for i, ident := range c.Identifications {
		if strings.TrimSpace(ident.Label) == "" {
			return fmt.Errorf("%w: identification %d has no label", ErrInvalidCreation, i)
		}
		if ident.Confidence < 0 || ident.Confidence > 1 {
			return fmt.Errorf("%w: identification %d confidence %f out of [0,1]", ErrInvalidCreation, i, ident.Confidence)
		}
	}
	return nil
}

// DecodeRecords parses an export payload holding either a single record or
// an array of records. Records are returned unvalidated; callers run
// Validate before storing.
func DecodeRecords(data []byte) ([]*Creation, error) {
	var single Creation
	if err := json.Unmarshal(data, &single); err == nil {
		return []*Creation{&single}, nil
	}

	var many []*Creation
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, fmt.Errorf("%w: not an exported creation or array of creations", ErrInvalidCreation)
	}
	if len(many) == 0 {
		return nil, fmt.Errorf("%w: empty record set", ErrInvalidCreation)
	}
	return many, nil
}
