// Package studio orchestrates the generation pipelines and owns the
// application state around them: the creation history and the app-wide
// upgrade gate.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vitrinehq/vitrine/internal/creation"
	"github.com/vitrinehq/vitrine/internal/generate"
	"github.com/vitrinehq/vitrine/internal/imagen"
	"github.com/vitrinehq/vitrine/internal/input"
)

// ErrGated is returned by generation operations while the upgrade gate is
// tripped. Callers surface it as the "upgrade required" view, not as a
// generic failure.
var ErrGated = errors.New("generation gated: upgrade required")

// ImageGenerator produces an image source (remote URL or data URL) for a
// prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Request is one artifact-generation submission.
type Request struct {
	// Prompt is the user's instruction. May be empty when an attachment or
	// page URL carries the intent.
	Prompt string `json:"prompt"`

	// Attachments are the user's uploads, still encoded as data URLs.
	Attachments []Attachment `json:"attachments,omitempty"`

	// PageURL optionally names a web page to fetch and fold into the
	// generation context.
	PageURL string `json:"pageUrl,omitempty"`
}

// Attachment is one raw upload from the client.
type Attachment struct {
	Name    string `json:"name"`
	DataURL string `json:"dataUrl"`
}

// ImageRequest is one image-generation submission.
type ImageRequest struct {
	Prompt string `json:"prompt"`
}

// Config contains all required parameters for the Studio.
type Config struct {
	Generator *generate.Service
	Images    ImageGenerator
	Store     *creation.Store
	Decoder   *input.Decoder
	Pages     *input.PageFetcher

	// HistoryMax caps the persisted history; zero disables pruning.
	HistoryMax int

	// GateReason, when non-empty, starts the studio with the upgrade gate
	// already tripped. Used when no model credentials are configured, so
	// the app comes up in the same gated state a quota failure would cause.
	GateReason string

	Logger *slog.Logger
}

func (cfg Config) validate() error {
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	if cfg.Images == nil {
		return errors.New("image generator is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Decoder == nil {
		return errors.New("input decoder is required")
	}
	if cfg.Pages == nil {
		return errors.New("page fetcher is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Studio runs the generation pipelines and mediates all access to the
// creation history.
type Studio struct {
	generator  *generate.Service
	images     ImageGenerator
	store      *creation.Store
	decoder    *input.Decoder
	pages      *input.PageFetcher
	gate       gate
	historyMax int
	logger     *slog.Logger
}

// New creates a Studio from the config.
func New(cfg Config) (*Studio, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid studio config: %w", err)
	}
	s := &Studio{
		generator:  cfg.Generator,
		images:     cfg.Images,
		store:      cfg.Store,
		decoder:    cfg.Decoder,
		pages:      cfg.Pages,
		historyMax: cfg.HistoryMax,
		logger:     cfg.Logger,
	}
	if cfg.GateReason != "" {
		s.gate.trip(cfg.GateReason)
	}
	return s, nil
}

// Generate runs the artifact pipeline: decode inputs, identify an attached
// image, generate the artifact with the detections folded in, persist, and
// report the finished Creation through emit.
//
// Identification failures never block generation; only an auth/quota
// classification escapes, trips the gate, and fails the request. Persistence
// failures are logged and swallowed, so a reachable model always yields a
// usable Creation.
func (s *Studio) Generate(ctx context.Context, req Request, emit Emitter) (*creation.Creation, error) {
	if err := s.refuseWhenGated(); err != nil {
		return nil, err
	}
	if emit == nil {
		emit = discardEmitter
	}

	if err := emit(ctx, phaseEvent(PhasePreparing)); err != nil {
		return nil, err
	}
	attachments, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	var detections []creation.Identification
	image := firstImage(attachments)
	if image != nil {
		if err := emit(ctx, phaseEvent(PhaseIdentifying)); err != nil {
			return nil, err
		}
		detections, err = s.generator.Identify(ctx, image.Data, image.MIME)
		if err != nil {
			return nil, s.fail("identify", err)
		}
		if len(detections) > 0 {
			if err := emit(ctx, identifyEvent(detections)); err != nil {
				return nil, err
			}
		}
	}

	if err := emit(ctx, phaseEvent(PhaseGenerating)); err != nil {
		return nil, err
	}
	html, err := s.generator.Artifact(ctx, generate.Request{
		Prompt:      req.Prompt,
		Attachments: attachments,
		Detections:  detections,
	}, func(ctx context.Context, chunk string) error {
		return emit(ctx, chunkEvent(chunk))
	})
	if err != nil {
		return nil, s.fail("generate artifact", err)
	}

	if err := emit(ctx, phaseEvent(PhaseSaving)); err != nil {
		return nil, err
	}
	c := creation.New(req.Prompt, html, creation.KindArtifact)
	c.Identifications = detections
	if image != nil {
		c.InputDataURL = image.DataURL()
		c.InputMIME = image.MIME
	}
	s.persist(ctx, c)

	if err := emit(ctx, resultEvent(c)); err != nil {
		return nil, err
	}
	s.logger.Info("creation generated",
		"id", c.ID,
		"name", c.Name,
		"attachments", len(attachments),
		"detections", len(detections))
	return c, nil
}

// GenerateImage runs the image pipeline: generate the image, wrap it in an
// HTML page, and persist it as a Creation.
func (s *Studio) GenerateImage(ctx context.Context, req ImageRequest, emit Emitter) (*creation.Creation, error) {
	if err := s.refuseWhenGated(); err != nil {
		return nil, err
	}
	if emit == nil {
		emit = discardEmitter
	}

	if err := emit(ctx, phaseEvent(PhaseGenerating)); err != nil {
		return nil, err
	}
	src, err := s.images.Generate(ctx, req.Prompt)
	if err != nil {
		return nil, s.fail("generate image", err)
	}
	page, err := imagen.WrapPage(req.Prompt, src)
	if err != nil {
		return nil, err
	}

	if err := emit(ctx, phaseEvent(PhaseSaving)); err != nil {
		return nil, err
	}
	c := creation.New(req.Prompt, page, creation.KindImage)
	s.persist(ctx, c)

	if err := emit(ctx, resultEvent(c)); err != nil {
		return nil, err
	}
	s.logger.Info("image creation generated", "id", c.ID, "name", c.Name)
	return c, nil
}

// History returns the full creation history, newest first.
func (s *Studio) History(ctx context.Context) ([]*creation.Creation, error) {
	return s.store.List(ctx)
}

// Creation looks up a single record by ID.
func (s *Studio) Creation(ctx context.Context, id uuid.UUID) (*creation.Creation, error) {
	return s.store.Get(ctx, id)
}

// Import validates an exported record and stores it. When the ID already
// exists the stored record is returned unchanged and imported is false.
func (s *Studio) Import(ctx context.Context, c *creation.Creation) (stored *creation.Creation, imported bool, err error) {
	if err := c.Validate(); err != nil {
		return nil, false, err
	}
	return s.store.Import(ctx, c)
}

// Count returns the number of persisted creations.
func (s *Studio) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// Ready reports whether the backing store answers queries.
func (s *Studio) Ready(ctx context.Context) error {
	_, err := s.store.Count(ctx)
	return err
}

// GateStatus returns a snapshot of the upgrade gate.
func (s *Studio) GateStatus() GateStatus {
	return s.gate.status()
}

// ClearGate re-opens generation after the user re-selected credentials.
func (s *Studio) ClearGate() {
	s.gate.clear()
	s.logger.Info("upgrade gate cleared")
}

func (s *Studio) refuseWhenGated() error {
	status := s.gate.status()
	if !status.Gated {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrGated, status.Reason)
}

// fail classifies an operation error and trips the gate on auth/quota
// failures, whichever operation raised them.
func (s *Studio) fail(op string, err error) error {
	classified := generate.Classify(err)
	if errors.Is(classified, generate.ErrKeyReset) {
		s.gate.trip(classified.Error())
		s.logger.Warn("key reset required, gating generation", "op", op, "error", err)
	}
	return classified
}

// prepare decodes the uploads and fetches the reference page, if any.
func (s *Studio) prepare(ctx context.Context, req Request) ([]*input.Attachment, error) {
	var attachments []*input.Attachment
	for _, raw := range req.Attachments {
		att, err := s.decoder.Decode(raw.Name, raw.DataURL)
		if err != nil {
			return nil, fmt.Errorf("attachment %q: %w", raw.Name, err)
		}
		attachments = append(attachments, att)
	}

	if url := strings.TrimSpace(req.PageURL); url != "" {
		page, err := s.pages.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, page)
	}
	return attachments, nil
}

// persist writes the creation and prunes the history to its cap. Failures
// are logged, never surfaced: the user still gets their result.
func (s *Studio) persist(ctx context.Context, c *creation.Creation) {
	if err := s.store.Put(ctx, c); err != nil {
		s.logger.Error("persist creation", "id", c.ID, "error", err)
		return
	}
	if s.historyMax <= 0 {
		return
	}
	evicted, err := s.store.Prune(ctx, s.historyMax)
	if err != nil {
		s.logger.Warn("prune history", "error", err)
		return
	}
	if evicted > 0 {
		s.logger.Debug("pruned history", "evicted", evicted, "max", s.historyMax)
	}
}

func firstImage(attachments []*input.Attachment) *input.Attachment {
	for _, att := range attachments {
		if att.Kind == input.KindImage {
			return att
		}
	}
	return nil
}
