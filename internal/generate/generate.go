// Package generate is the model service layer: the vision identify pass and
// streaming artifact generation, both through Genkit.
//
// Error handling follows one rule: auth and quota failures are classified
// with IsKeyReset and wrapped in ErrKeyReset so the orchestrator can gate
// the whole application; all other failures stay local to the request.
package generate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/vitrinehq/vitrine/internal/creation"
	"github.com/vitrinehq/vitrine/internal/input"
)

// maxDetections caps how many identified subjects are kept per image.
const maxDetections = 5

// Sentinel errors for generation operations.
var (
	// ErrEmptyRequest indicates the request carries neither a prompt nor
	// any attachment.
	ErrEmptyRequest = errors.New("empty request")

	// ErrEmptyArtifact indicates the model produced no usable HTML.
	ErrEmptyArtifact = errors.New("model returned an empty artifact")
)

// StreamCallback receives incremental artifact output as the model emits
// it. Chunks are raw model text; fence stripping applies only to the final
// document. Return an error to abort the stream.
type StreamCallback func(ctx context.Context, chunk string) error

// Request carries everything needed to produce one artifact.
type Request struct {
	Prompt      string
	Attachments []*input.Attachment
	Detections  []creation.Identification
}

// Config contains all required parameters for the Service.
type Config struct {
	Genkit *genkit.Genkit
	Logger *slog.Logger

	// ModelName is the provider-qualified model (e.g. "googleai/gemini-2.5-flash").
	ModelName string

	// Generation parameters. Zero values leave the model defaults in place.
	Temperature float32
	MaxTokens   int
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Service runs identify and artifact generation against the configured
// model. All configuration is captured immutably at construction time, so
// a single Service is safe for concurrent use.
type Service struct {
	g           *genkit.Genkit
	logger      *slog.Logger
	modelName   string
	temperature float32
	maxTokens   int
}

// New creates a Service from required configuration.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Service{
		g:           cfg.Genkit,
		logger:      cfg.Logger,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// identifyOutput is the structured-output contract for the vision pass.
type identifyOutput struct {
	Detections []creation.Identification `json:"detections"`
}

// Identify labels the main subjects of an image.
//
// Fails soft: any ordinary failure logs and returns an empty list so the
// caller proceeds without vision context. Auth/quota failures are the one
// exception and come back wrapping ErrKeyReset.
func (s *Service) Identify(ctx context.Context, image []byte, mime string) ([]creation.Identification, error) {
	if len(image) == 0 {
		return nil, nil
	}

	userMessage := ai.NewUserMessage(
		mediaPart(mime, image),
		ai.NewTextPart(identifyUserPrompt),
	)

	resp, err := genkit.Generate(ctx, s.g,
		ai.WithModelName(s.modelName),
		ai.WithSystem(identifySystemPrompt),
		ai.WithMessages(userMessage),
		ai.WithOutputType(identifyOutput{}),
	)
	if err != nil {
		if classified := Classify(err); errors.Is(classified, ErrKeyReset) {
			return nil, classified
		}
		s.logger.Warn("identification failed, proceeding without detections", "error", err)
		return nil, nil
	}

	var out identifyOutput
	if err := resp.Output(&out); err != nil {
		s.logger.Warn("identification output did not parse", "error", err)
		return nil, nil
	}

	return sanitizeDetections(out.Detections), nil
}

// Artifact generates one self-contained HTML document for the request.
// If callback is non-nil it receives each raw output chunk as it streams.
// The returned document has markdown fence markers stripped.
func (s *Service) Artifact(ctx context.Context, req Request, callback StreamCallback) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" && len(req.Attachments) == 0 {
		return "", ErrEmptyRequest
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(s.modelName),
		ai.WithSystem(artifactSystemPrompt),
		ai.WithMessages(ai.NewUserMessage(s.buildParts(req)...)),
	}
	if cfg := s.modelConfig(); cfg != nil {
		opts = append(opts, ai.WithConfig(cfg))
	}
	if callback != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return callback(ctx, chunk.Text())
		}))
	}

	s.logger.Debug("generating artifact",
		"model", s.modelName,
		"promptLength", len(req.Prompt),
		"attachments", len(req.Attachments),
		"detections", len(req.Detections),
	)

	resp, err := genkit.Generate(ctx, s.g, opts...)
	if err != nil {
		return "", Classify(err)
	}

	html := stripCodeFences(resp.Text())
	if html == "" {
		return "", ErrEmptyArtifact
	}
	return html, nil
}

// buildParts assembles the multimodal user message: attachments first, then
// the detection context, then the user's prompt.
func (s *Service) buildParts(req Request) []*ai.Part {
	parts := make([]*ai.Part, 0, len(req.Attachments)+2)

	for _, att := range req.Attachments {
		switch att.Kind {
		case input.KindImage:
			parts = append(parts, mediaPart(att.MIME, att.Data))
		case input.KindPDF:
			parts = append(parts, mediaPart(att.MIME, att.Data))
			if att.Pages > 0 {
				parts = append(parts, ai.NewTextPart(fmt.Sprintf("Attached PDF %q, %d pages.", att.Name, att.Pages)))
			}
		case input.KindText:
			parts = append(parts, ai.NewTextPart(fmt.Sprintf("Attached document %q:\n%s", att.Name, att.Text)))
		case input.KindPage:
			parts = append(parts, ai.NewTextPart(fmt.Sprintf("Reference page %q:\n%s", att.Name, att.Text)))
		}
	}

	if len(req.Detections) > 0 {
		parts = append(parts, ai.NewTextPart(detectionContext(req.Detections)))
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = fallbackArtifactPrompt
	}
	return append(parts, ai.NewTextPart(prompt))
}

// modelConfig returns the provider generation config, nil when every
// parameter is unset.
func (s *Service) modelConfig() *genai.GenerateContentConfig {
	if s.temperature == 0 && s.maxTokens == 0 {
		return nil
	}
	cfg := &genai.GenerateContentConfig{}
	if s.temperature > 0 {
		cfg.Temperature = genai.Ptr(s.temperature)
	}
	if s.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(s.maxTokens)
	}
	return cfg
}

// mediaPart wraps raw bytes as a data-URL media part.
func mediaPart(mime string, data []byte) *ai.Part {
	return ai.NewMediaPart(mime, "data:"+mime+";base64,"+base64.StdEncoding.EncodeToString(data))
}

// detectionContext folds vision labels into the prompt so the generated
// page reflects what the image actually shows.
func detectionContext(detections []creation.Identification) string {
	var sb strings.Builder
	sb.WriteString("The attached image contains: ")
	for i, d := range detections {
		if i > 0 {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "%s (%.0f%% confidence)", d.Label, d.Confidence*100)
		if d.Description != "" {
			fmt.Fprintf(&sb, ", %s", d.Description)
		}
	}
	sb.WriteString(".")
	return sb.String()
}

// sanitizeDetections drops unusable entries and clamps scores so malformed
// model output cannot poison stored creations.
func sanitizeDetections(detections []creation.Identification) []creation.Identification {
	out := make([]creation.Identification, 0, len(detections))
	for _, d := range detections {
		d.Label = strings.TrimSpace(d.Label)
		if d.Label == "" {
			continue
		}
		if d.Confidence < 0 {
			d.Confidence = 0
		}
		if d.Confidence > 1 {
			d.Confidence = 1
		}
		out = append(out, d)
		if len(out) == maxDetections {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// stripCodeFences removes markdown fence lines from model output. Models
// occasionally wrap the document in ```html fences despite instructions;
// a stray fence inside the iframe renders as visible garbage.
func stripCodeFences(s string) string {
	if !strings.Contains(s, "```") {
		return strings.TrimSpace(s)
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
