package creation

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitrinehq/vitrine/internal/security"
)

// maxExampleBytes caps a single fetched example file. Bundled examples are
// small; anything larger is a misconfigured URL, not an example.
const maxExampleBytes = 8 << 20

//go:embed examples.yaml
var examplesManifest []byte

type manifest struct {
	Examples []string `yaml:"examples"`
}

// BundledExampleURLs returns the example-creation URLs shipped with the
// binary.
func BundledExampleURLs() ([]string, error) {
	var m manifest
	if err := yaml.Unmarshal(examplesManifest, &m); err != nil {
		return nil, fmt.Errorf("parse examples manifest: %w", err)
	}
	return m.Examples, nil
}

// Seeder populates an empty history from the bundled example URLs.
//
// Seeding is strictly best-effort: the first run should feel furnished, but
// no fetch or parse failure may ever block startup. Every failure is logged
// and swallowed.
type Seeder struct {
	store  *Store
	guard  *security.Guard
	client *http.Client
	logger *slog.Logger

	// urls overrides the bundled manifest; tests point it at a local server.
	urls []string
}

// NewSeeder creates a seeder with a per-fetch timeout. Fetches go through
// the guard's client, so seeding follows the same outbound policy as
// webpage attachments.
func NewSeeder(store *Store, guard *security.Guard, timeout time.Duration, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		store:  store,
		guard:  guard,
		client: guard.Client(timeout),
		logger: logger,
	}
}

// SeedIfEmpty fetches the example creations when the history is empty and
// stores any that parse. Returns the number of creations seeded.
func (s *Seeder) SeedIfEmpty(ctx context.Context) int {
	count, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Warn("example seeding skipped: count failed", "error", err)
		return 0
	}
	if count > 0 {
		return 0
	}

	urls := s.urls
	if urls == nil {
		urls, err = BundledExampleURLs()
		if err != nil {
			s.logger.Warn("example seeding skipped: bad manifest", "error", err)
			return 0
		}
	}

	seeded := 0
	for _, url := range urls {
		c, err := s.fetch(ctx, url)
		if err != nil {
			s.logger.Warn("example fetch failed", "url", url, "error", err)
			continue
		}
		// Import rather than Put: examples carry fixed IDs, and a half-seeded
		// history from an earlier crash must not produce duplicates.
		if _, _, err := s.store.Import(ctx, c); err != nil {
			s.logger.Warn("example store failed", "url", url, "error", err)
			continue
		}
		seeded++
	}

	if seeded > 0 {
		s.logger.Info("seeded example creations", "count", seeded)
	}
	return seeded
}

func (s *Seeder) fetch(ctx context.Context, url string) (*Creation, error) {
	if err := s.guard.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	var c Creation
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxExampleBytes))
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
