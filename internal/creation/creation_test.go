package creation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNew(t *testing.T) {
	c := New("a retro calculator", "<html></html>", KindArtifact)

	if c.ID == uuid.Nil {
		t.Error("New() did not assign an ID")
	}
	if c.Name != "a retro calculator" {
		t.Errorf("Name = %q", c.Name)
	}
	if c.Kind != KindArtifact {
		t.Errorf("Kind = %q", c.Kind)
	}
	if c.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
	if c.CreatedAt.Location() != time.UTC {
		t.Error("CreatedAt is not UTC")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("fresh creation failed validation: %v", err)
	}
}

func TestNewUniqueIDs(t *testing.T) {
	seen := make(map[uuid.UUID]bool)
	for range 100 {
		c := New("p", "<html></html>", KindArtifact)
		if seen[c.ID] {
			t.Fatalf("duplicate ID %s", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestDeriveName(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"plain", "a tiny drum machine", "a tiny drum machine"},
		{"first line only", "drum machine\nwith pads", "drum machine"},
		{"trimmed", "  spaced out  ", "spaced out"},
		{"empty", "", "Untitled creation"},
		{"whitespace only", "   \n  ", "Untitled creation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveName(tt.prompt); got != tt.want {
				t.Errorf("DeriveName(%q) = %q, want %q", tt.prompt, got, tt.want)
			}
		})
	}

	long := strings.Repeat("x", 200)
	got := DeriveName(long)
	if len([]rune(got)) > maxNameLen {
		t.Errorf("long name not truncated: %d runes", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated name missing ellipsis: %q", got)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Creation {
		return &Creation{
			ID:        uuid.New(),
			Name:      "n",
			HTML:      "<html></html>",
			Kind:      KindArtifact,
			CreatedAt: time.Now().UTC(),
		}
	}

	tests := []struct {
		name   string
		mutate func(*Creation)
		ok     bool
	}{
		{"valid", func(c *Creation) {}, true},
		{"nil id", func(c *Creation) { c.ID = uuid.Nil }, false},
		{"empty name", func(c *Creation) { c.Name = " " }, false},
		{"empty html", func(c *Creation) { c.HTML = "" }, false},
		{"unknown kind", func(c *Creation) { c.Kind = "widget" }, false},
		{"zero timestamp", func(c *Creation) { c.CreatedAt = time.Time{} }, false},
		{"image kind", func(c *Creation) { c.Kind = KindImage }, true},
		{"unlabeled identification", func(c *Creation) {
			c.Identifications = []Identification{{Confidence: 0.5}}
		}, false},
		{"confidence out of range", func(c *Creation) {
			c.Identifications = []Identification{{Label: "button", Confidence: 1.5}}
		}, false},
		{"good identifications", func(c *Creation) {
			c.Identifications = []Identification{
				{Label: "button", Confidence: 0.92, Description: "primary CTA", Category: "control"},
			}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidCreation) {
				t.Errorf("expected ErrInvalidCreation, got %v", err)
			}
		})
	}
}

func TestValidateNormalizesEmptyKind(t *testing.T) {
	c := &Creation{
		ID:        uuid.New(),
		Name:      "old export",
		HTML:      "<html></html>",
		CreatedAt: time.Now().UTC(),
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if c.Kind != KindArtifact {
		t.Errorf("empty kind normalized to %q, want %q", c.Kind, KindArtifact)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := &Creation{
		ID:           uuid.New(),
		Name:         "neon grid",
		HTML:         "<html><body>grid</body></html>",
		Kind:         KindArtifact,
		InputDataURL: "data:image/png;base64,aGk=",
		InputMIME:    "image/png",
		CreatedAt:    time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC),
		Identifications: []Identification{
			{Label: "nav bar", Confidence: 0.87, Description: "top navigation", Category: "layout"},
		},
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var back Creation
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if back.ID != orig.ID {
		t.Errorf("ID changed: %s != %s", back.ID, orig.ID)
	}
	if !back.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("timestamp changed: %s != %s", back.CreatedAt, orig.CreatedAt)
	}
	if len(back.Identifications) != 1 || back.Identifications[0] != orig.Identifications[0] {
		t.Errorf("identifications changed: %+v", back.Identifications)
	}
}
