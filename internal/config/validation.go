package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"
)

// maxTimeout bounds every configurable wait so a typo cannot hang a request
// for hours.
const maxTimeout = 10 * time.Minute

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
//
// Note that a missing AI API key is deliberately not a validation error: the
// studio surfaces it through the gated credential state instead, so the server
// can still come up and show the user what to fix.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Server
	if c.Server.Host == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidHost)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPort, c.Server.Port)
	}

	// AI model configuration
	if c.AI.Model == "" {
		return fmt.Errorf("%w: ai.model cannot be empty", ErrInvalidModel)
	}
	if c.AI.ImageModel == "" {
		return fmt.Errorf("%w: ai.image_model cannot be empty", ErrInvalidModel)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	// Reference: Gemini API documentation
	if c.AI.Temperature < 0.0 || c.AI.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.AI.Temperature)
	}

	// MaxTokens range: 1 to 2097152 (Gemini 2.5 max context window)
	if c.AI.MaxTokens < 1 || c.AI.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.AI.MaxTokens)
	}

	// Imagen endpoint is optional; when set it must be an absolute HTTP(S) URL
	if c.Imagen.Endpoint != "" {
		u, err := url.Parse(c.Imagen.Endpoint)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidImagenEndpoint, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q must be an absolute http(s) URL", ErrInvalidImagenEndpoint, c.Imagen.Endpoint)
		}
	}
	if err := validTimeout("imagen.timeout", c.Imagen.Timeout); err != nil {
		return err
	}

	// Store
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path cannot be empty", ErrInvalidStorePath)
	}
	if c.Store.MaxHistory < 0 {
		return fmt.Errorf("%w: must be >= 0 (0 disables eviction), got %d", ErrInvalidMaxHistory, c.Store.MaxHistory)
	}

	// Examples
	if err := validTimeout("examples.timeout", c.Examples.Timeout); err != nil {
		return err
	}

	// Input
	if c.Input.MaxBytes < 1 || c.Input.MaxBytes > 100<<20 {
		return fmt.Errorf("%w: must be between 1 and 100 MiB, got %d", ErrInvalidMaxBytes, c.Input.MaxBytes)
	}
	if err := validTimeout("input.fetch_timeout", c.Input.FetchTimeout); err != nil {
		return err
	}

	// Rate limit: 0 rps disables limiting, but a positive rate needs a burst
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("%w: rps must be >= 0, got %f", ErrInvalidRateLimit, c.RateLimit.RPS)
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("%w: burst must be >= 1 when rps is set, got %d", ErrInvalidRateLimit, c.RateLimit.Burst)
	}

	// Logging
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, c.Log.Format) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v", ErrInvalidLogFormat, c.Log.Format, validFormats)
	}
	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !slices.Contains(validLevels, c.Log.Level) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v", ErrInvalidLogLevel, c.Log.Level, validLevels)
	}

	// Observability
	if c.Observability.Enabled && c.Observability.Endpoint == "" {
		return fmt.Errorf("%w: endpoint required when enabled", ErrInvalidObservability)
	}

	return nil
}

func validTimeout(name string, d time.Duration) error {
	if d <= 0 || d > maxTimeout {
		return fmt.Errorf("%w: %s must be between 1ns and %s, got %s", ErrInvalidTimeout, name, maxTimeout, d)
	}
	return nil
}
