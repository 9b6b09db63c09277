// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (VITRINE_*, runtime override)
//  2. Config file (~/.vitrine/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Server: listen address, CORS, proxy trust
//   - AI: model selection, temperature, API key
//   - Imagen: external image-generation endpoint and completion window
//   - Store: history database path and eviction cap
//   - Examples: first-run example seeding
//   - Input: attachment limits and URL fetch timeout
//
// Security: sensitive data (API keys) is never logged; the config directory
// uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidHost indicates the server host is invalid.
	ErrInvalidHost = errors.New("invalid server host")

	// ErrInvalidPort indicates the server port is out of range.
	ErrInvalidPort = errors.New("invalid server port")

	// ErrInvalidModel indicates the model name is invalid.
	ErrInvalidModel = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidImagenEndpoint indicates the image-generation endpoint is not a
	// usable HTTP(S) URL.
	ErrInvalidImagenEndpoint = errors.New("invalid imagen endpoint")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidStorePath indicates the history database path is invalid.
	ErrInvalidStorePath = errors.New("invalid store path")

	// ErrInvalidMaxHistory indicates the history cap is out of range.
	ErrInvalidMaxHistory = errors.New("invalid max history")

	// ErrInvalidMaxBytes indicates the attachment size cap is out of range.
	ErrInvalidMaxBytes = errors.New("invalid max bytes")

	// ErrInvalidRateLimit indicates the rate limit settings are inconsistent.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidLogFormat indicates the log format is not supported.
	ErrInvalidLogFormat = errors.New("invalid log format")

	// ErrInvalidLogLevel indicates the log level is not supported.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidObservability indicates the tracing settings are incomplete.
	ErrInvalidObservability = errors.New("invalid observability settings")
)

const (
	// DefaultModel is the provider-qualified model used for artifact
	// generation and image labeling.
	DefaultModel = "googleai/gemini-2.5-flash"

	// DefaultImageModel is the model used by the image-generation fallback
	// path.
	DefaultImageModel = "gemini-2.5-flash-image-preview"

	// DefaultImagenTimeout bounds the primary image-generation exchange: job
	// submission plus the event-stream wait for completion.
	DefaultImagenTimeout = 60 * time.Second

	// DefaultMaxHistory is the history eviction cap. Oldest creations are
	// pruned beyond it; 0 disables eviction.
	DefaultMaxHistory = 200

	// DefaultMaxInputBytes caps a single decoded attachment (20 MiB, the
	// inline-media ceiling of the Gemini API).
	DefaultMaxInputBytes = 20 << 20
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (API keys, tokens), update the owning
// struct's MarshalJSON.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" json:"server"`
	AI            AIConfig            `mapstructure:"ai" json:"ai"`
	Imagen        ImagenConfig        `mapstructure:"imagen" json:"imagen"`
	Store         StoreConfig         `mapstructure:"store" json:"store"`
	Examples      ExamplesConfig      `mapstructure:"examples" json:"examples"`
	Input         InputConfig         `mapstructure:"input" json:"input"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit" json:"ratelimit"`
	Log           LogConfig           `mapstructure:"log" json:"log"`
	Observability ObservabilityConfig `mapstructure:"observability" json:"observability"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
	// CORSOrigins lists origins allowed to call the API from another host.
	// Empty means same-origin only, which is the normal embedded-UI setup.
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	// TrustProxy trusts X-Real-IP/X-Forwarded-For headers. Set true only
	// behind a reverse proxy.
	TrustProxy bool `mapstructure:"trust_proxy" json:"trust_proxy"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AIConfig holds model selection and credentials for the multimodal model.
type AIConfig struct {
	// APIKey authenticates against the hosted model API. Resolved from
	// VITRINE_AI_API_KEY, falling back to GEMINI_API_KEY. An empty key does
	// not fail validation: the studio starts in the gated credential state
	// instead, mirroring how a quota error gates it at runtime.
	APIKey string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON

	// Model is the provider-qualified generation model.
	Model string `mapstructure:"model" json:"model"`

	// ImageModel is the fallback image-synthesis model (raw model ID, not
	// provider-qualified; it is called through the genai SDK directly).
	ImageModel string `mapstructure:"image_model" json:"image_model"`

	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`
}

// QualifiedModel returns the provider-qualified model name for Genkit.
// If Model already contains a "/", it is returned as-is; otherwise it is
// assumed to be a Google AI model.
func (a AIConfig) QualifiedModel() string {
	if strings.Contains(a.Model, "/") {
		return a.Model
	}
	return "googleai/" + a.Model
}

// MarshalJSON masks the API key.
func (a AIConfig) MarshalJSON() ([]byte, error) {
	type alias AIConfig
	m := alias(a)
	m.APIKey = maskSecret(m.APIKey)
	return json.Marshal(m)
}

// ImagenConfig holds the primary image-generation endpoint settings.
// An empty Endpoint disables the primary path; generation then goes straight
// to the fallback model.
type ImagenConfig struct {
	Endpoint string        `mapstructure:"endpoint" json:"endpoint"`
	APIKey   string        `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout"`
}

// MarshalJSON masks the API key.
func (i ImagenConfig) MarshalJSON() ([]byte, error) {
	type alias ImagenConfig
	m := alias(i)
	m.APIKey = maskSecret(m.APIKey)
	return json.Marshal(m)
}

// StoreConfig holds history persistence settings.
type StoreConfig struct {
	Path       string `mapstructure:"path" json:"path"`
	MaxHistory int    `mapstructure:"max_history" json:"max_history"`
}

// ExamplesConfig controls first-run seeding of the history from bundled
// example-artifact URLs.
type ExamplesConfig struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// InputConfig bounds user-supplied attachments and URL fetches.
type InputConfig struct {
	MaxBytes     int64         `mapstructure:"max_bytes" json:"max_bytes"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" json:"fetch_timeout"`
}

// RateLimitConfig throttles the generation endpoints per client IP.
// RPS of 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" json:"rps"`
	Burst int     `mapstructure:"burst" json:"burst"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// ObservabilityConfig holds optional OTLP trace export settings.
type ObservabilityConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	Service  string `mapstructure:"service" json:"service"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".vitrine")

	// Ensure directory exists (0750 keeps the key-bearing config private)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v, configDir)
	bindEnvVariables(v)

	// Read configuration file (if exists)
	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.trust_proxy", false)

	v.SetDefault("ai.model", DefaultModel)
	v.SetDefault("ai.image_model", DefaultImageModel)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.max_tokens", 16384)

	v.SetDefault("imagen.endpoint", "")
	v.SetDefault("imagen.timeout", DefaultImagenTimeout)

	v.SetDefault("store.path", filepath.Join(configDir, "vitrine.db"))
	v.SetDefault("store.max_history", DefaultMaxHistory)

	v.SetDefault("examples.enabled", true)
	v.SetDefault("examples.timeout", 15*time.Second)

	v.SetDefault("input.max_bytes", DefaultMaxInputBytes)
	v.SetDefault("input.fetch_timeout", 15*time.Second)

	v.SetDefault("ratelimit.rps", 0.5)
	v.SetDefault("ratelimit.burst", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.endpoint", "localhost:4318")
	v.SetDefault("observability.service", "vitrine")
}

// bindEnvVariables binds environment variable overrides explicitly.
// The model API key accepts GEMINI_API_KEY as a fallback name so that an
// existing Gemini setup works without renaming anything.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key string, envVars ...string) {
		if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %v: %v", key, envVars, err))
		}
	}

	mustBind("server.host", "VITRINE_SERVER_HOST")
	mustBind("server.port", "VITRINE_SERVER_PORT")
	mustBind("server.cors_origins", "VITRINE_CORS_ORIGINS")
	mustBind("server.trust_proxy", "VITRINE_TRUST_PROXY")

	mustBind("ai.api_key", "VITRINE_AI_API_KEY", "GEMINI_API_KEY")
	mustBind("ai.model", "VITRINE_AI_MODEL")
	mustBind("ai.image_model", "VITRINE_AI_IMAGE_MODEL")

	mustBind("imagen.endpoint", "VITRINE_IMAGEN_ENDPOINT")
	mustBind("imagen.api_key", "VITRINE_IMAGEN_API_KEY")
	mustBind("imagen.timeout", "VITRINE_IMAGEN_TIMEOUT")

	mustBind("store.path", "VITRINE_STORE_PATH")
	mustBind("store.max_history", "VITRINE_STORE_MAX_HISTORY")

	mustBind("examples.enabled", "VITRINE_EXAMPLES_ENABLED")

	mustBind("log.level", "VITRINE_LOG_LEVEL")
	mustBind("log.format", "VITRINE_LOG_FORMAT")

	mustBind("observability.enabled", "VITRINE_OBSERVABILITY_ENABLED")
	mustBind("observability.endpoint", "VITRINE_OBSERVABILITY_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid substring matching against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer ones keep the
// first and last 2 characters for debug utility.
//
// THREAT MODEL: this defends against accidental logging of real secrets. It
// is not cryptographically secure; if logs are compromised, rotate keys.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler. Sensitive nested fields are masked
// by the nested structs' own MarshalJSON implementations.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	data, err := json.Marshal(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
