package config

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// defaults returns a Config populated the way Load() would with no file and
// no environment overrides.
func defaults(t *testing.T) *Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	// Make sure ambient credentials don't leak into the test
	t.Setenv("VITRINE_AI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := defaults(t)

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("expected default port 8787, got %d", cfg.Server.Port)
	}
	if cfg.AI.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.AI.Model)
	}
	if cfg.AI.ImageModel != DefaultImageModel {
		t.Errorf("expected default image model %q, got %q", DefaultImageModel, cfg.AI.ImageModel)
	}
	if cfg.Imagen.Timeout != DefaultImagenTimeout {
		t.Errorf("expected default imagen timeout %s, got %s", DefaultImagenTimeout, cfg.Imagen.Timeout)
	}
	if cfg.Imagen.Endpoint != "" {
		t.Errorf("expected primary imagen endpoint disabled by default, got %q", cfg.Imagen.Endpoint)
	}
	if cfg.Store.MaxHistory != DefaultMaxHistory {
		t.Errorf("expected default max history %d, got %d", DefaultMaxHistory, cfg.Store.MaxHistory)
	}
	if !strings.HasSuffix(cfg.Store.Path, "vitrine.db") {
		t.Errorf("expected store path under the config dir, got %q", cfg.Store.Path)
	}
	if !cfg.Examples.Enabled {
		t.Error("expected examples seeding enabled by default")
	}
	if cfg.Input.MaxBytes != DefaultMaxInputBytes {
		t.Errorf("expected default input cap %d, got %d", DefaultMaxInputBytes, cfg.Input.MaxBytes)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("expected default logging info/text, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Observability.Enabled {
		t.Error("expected tracing disabled by default")
	}
}

func TestLoadMissingAPIKeyIsNotFatal(t *testing.T) {
	cfg := defaults(t)

	// The key-reset gate handles missing credentials at runtime; Load must
	// still succeed so the server can come up and show the gated view.
	if cfg.AI.APIKey != "" {
		t.Errorf("expected empty API key, got %q", cfg.AI.APIKey)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VITRINE_SERVER_PORT", "9000")
	t.Setenv("VITRINE_AI_MODEL", "googleai/gemini-2.5-pro")
	t.Setenv("VITRINE_AI_API_KEY", "vitrine-key")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("VITRINE_IMAGEN_ENDPOINT", "https://imagen.example.com")
	t.Setenv("VITRINE_IMAGEN_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port override 9000, got %d", cfg.Server.Port)
	}
	if cfg.AI.Model != "googleai/gemini-2.5-pro" {
		t.Errorf("expected model override, got %q", cfg.AI.Model)
	}
	// VITRINE_AI_API_KEY takes priority over GEMINI_API_KEY
	if cfg.AI.APIKey != "vitrine-key" {
		t.Errorf("expected vitrine-key, got %q", cfg.AI.APIKey)
	}
	if cfg.Imagen.Endpoint != "https://imagen.example.com" {
		t.Errorf("expected imagen endpoint override, got %q", cfg.Imagen.Endpoint)
	}
	if cfg.Imagen.Timeout != 90*time.Second {
		t.Errorf("expected imagen timeout 90s, got %s", cfg.Imagen.Timeout)
	}
}

func TestLoadGeminiKeyFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VITRINE_AI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gemini-only")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.AI.APIKey != "gemini-only" {
		t.Errorf("expected GEMINI_API_KEY fallback, got %q", cfg.AI.APIKey)
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8787}
	if got := s.Addr(); got != "127.0.0.1:8787" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8787", got)
	}
}

func TestQualifiedModel(t *testing.T) {
	cases := map[string]string{
		"gemini-2.5-flash":          "googleai/gemini-2.5-flash",
		"googleai/gemini-2.5-flash": "googleai/gemini-2.5-flash",
		"ollama/llama3.3":           "ollama/llama3.3",
	}
	for in, want := range cases {
		a := AIConfig{Model: in}
		if got := a.QualifiedModel(); got != want {
			t.Errorf("QualifiedModel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMarshalJSONMasksSecrets(t *testing.T) {
	cfg := defaults(t)
	cfg.AI.APIKey = "super-secret-api-key-123"
	cfg.Imagen.APIKey = "imagen-secret-key-456"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	out := string(data)
	if strings.Contains(out, "super-secret-api-key-123") {
		t.Error("AI API key leaked into JSON output")
	}
	if strings.Contains(out, "imagen-secret-key-456") {
		t.Error("imagen API key leaked into JSON output")
	}
	if !strings.Contains(out, maskedValue) {
		t.Error("expected masked placeholder in JSON output")
	}
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := defaults(t)
	cfg.AI.APIKey = "another-secret-value-789"

	if strings.Contains(cfg.String(), "another-secret-value-789") {
		t.Error("String() leaked the API key")
	}
}

func TestMaskSecret(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", maskedValue},
		{"12345678", maskedValue},
		{"my_long_secret_key_123", "my<" + maskedValue + ">23"},
	}
	for _, tc := range cases {
		if got := maskSecret(tc.in); got != tc.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
