// Package app assembles the vitrine service graph from configuration and
// owns its shutdown order.
//
// Setup builds, in order: data-dir lock, trace export, creation store,
// example seeding, Genkit, the model service layer, the image client, and
// the studio. Every surface (HTTP, CLI, MCP) starts from the same App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/gofrs/flock"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/creation"
	"github.com/vitrinehq/vitrine/internal/generate"
	"github.com/vitrinehq/vitrine/internal/imagen"
	"github.com/vitrinehq/vitrine/internal/input"
	"github.com/vitrinehq/vitrine/internal/observability"
	"github.com/vitrinehq/vitrine/internal/security"
	"github.com/vitrinehq/vitrine/internal/studio"
)

// ErrAlreadyRunning indicates another vitrine process holds the data-dir
// lock. The store is a local SQLite file; one writer process keeps the
// history consistent.
var ErrAlreadyRunning = errors.New("another vitrine instance is running")

// otelShutdownTimeout bounds the trace flush during Close.
const otelShutdownTimeout = 5 * time.Second

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit    *genkit.Genkit
	Store     *creation.Store
	Generator *generate.Service
	Decoder   *input.Decoder
	Studio    *studio.Studio

	lock         *flock.Flock
	otelShutdown func(context.Context) error
}

// Setup creates and initializes the application. The config must already be
// validated. On error, everything initialized so far is released; otherwise
// call Close when done.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	dataDir := filepath.Dir(cfg.Store.Path)
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, "vitrine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring data-dir lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (data dir %s)", ErrAlreadyRunning, dataDir)
	}
	a.lock = lock

	if cfg.Observability.Enabled {
		a.otelShutdown = observability.Setup(ctx, observability.Config{
			Endpoint: cfg.Observability.Endpoint,
			Service:  cfg.Observability.Service,
		}, logger)
	}

	store, err := creation.Open(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening creation store: %w", err)
	}
	a.Store = store

	guard := security.NewGuard()
	if cfg.Examples.Enabled {
		creation.NewSeeder(store, guard, cfg.Examples.Timeout, logger).SeedIfEmpty(ctx)
	}

	a.Genkit, err = provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.Generator, err = generate.New(generate.Config{
		Genkit:      a.Genkit,
		Logger:      logger,
		ModelName:   cfg.AI.QualifiedModel(),
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating generation service: %w", err)
	}

	images, err := provideImages(cfg, logger)
	if err != nil {
		return nil, err
	}

	a.Decoder = input.NewDecoder(cfg.Input.MaxBytes, logger)
	pages := input.NewPageFetcher(guard, cfg.Input.FetchTimeout, cfg.Input.MaxBytes, logger)

	a.Studio, err = studio.New(studio.Config{
		Generator:  a.Generator,
		Images:     images,
		Store:      store,
		Decoder:    a.Decoder,
		Pages:      pages,
		HistoryMax: cfg.Store.MaxHistory,
		GateReason: gateReason(cfg),
		Logger:     logger.With("component", "studio"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating studio: %w", err)
	}

	return a, nil
}

// Close releases resources in reverse construction order.
func (a *App) Close() error {
	var errs []error

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
		a.Store = nil
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing traces: %w", err))
		}
		cancel()
		a.otelShutdown = nil
	}

	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("releasing data-dir lock: %w", err))
		}
		a.lock = nil
	}

	return errors.Join(errs...)
}

// provideGenkit initializes Genkit. The Google AI plugin is only attached
// when a key is configured; without one the app still starts, gated, so the
// user can browse history and the seeded examples.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	var g *genkit.Genkit
	if cfg.AI.APIKey != "" {
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.AI.APIKey}))
	} else {
		g = genkit.Init(ctx)
	}
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return g, nil
}

// provideImages builds the image generator: the job-endpoint client with
// its Gemini fallback, or a gated stand-in when no key is configured.
func provideImages(cfg *config.Config, logger *slog.Logger) (studio.ImageGenerator, error) {
	if cfg.AI.APIKey == "" {
		return unavailableImages{}, nil
	}
	client, err := imagen.New(imagen.Config{
		Endpoint:       cfg.Imagen.Endpoint,
		APIKey:         cfg.Imagen.APIKey,
		Timeout:        cfg.Imagen.Timeout,
		FallbackAPIKey: cfg.AI.APIKey,
		FallbackModel:  cfg.AI.ImageModel,
		Logger:         logger.With("component", "imagen"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating image client: %w", err)
	}
	return client, nil
}

// gateReason reports why the studio must start gated, or "" when it can
// generate.
func gateReason(cfg *config.Config) string {
	if cfg.AI.APIKey == "" {
		return "no model API key configured; set VITRINE_AI_API_KEY or GEMINI_API_KEY"
	}
	return ""
}

// unavailableImages refuses image generation while no key is configured.
// The studio gate normally refuses first; this covers a cleared gate with
// the key still missing, re-tripping it through the usual classification.
type unavailableImages struct{}

func (unavailableImages) Generate(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: no model API key configured", generate.ErrKeyReset)
}
