// Package config provides the configuration schema, loader, and provider registry
// for the transvox audio translation gateway.
package config

import (
	"time"

	"github.com/MrWong99/transvox/pkg/analyzer"
)

// LogLevel controls log verbosity for the transvox server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// TranslateSource selects which buffer is forwarded to the translation
// service.
type TranslateSource string

const (
	// SourceOriginal forwards the bytes the client uploaded.
	SourceOriginal TranslateSource = "original"

	// SourceProcessed forwards the normalised variant fetched from staging.
	SourceProcessed TranslateSource = "processed"
)

// IsValid reports whether s is a recognised translate source.
func (s TranslateSource) IsValid() bool {
	return s == SourceOriginal || s == SourceProcessed
}

// Defaults applied by [LoadFromReader] to fields left empty.
const (
	DefaultListenAddr         = ":8080"
	DefaultMaxUploadBytes     = 10 << 20
	DefaultShutdownTimeout    = 15 * time.Second
	DefaultCleanupTimeout     = 10 * time.Second
	DefaultDownloadMaxElapsed = 20 * time.Second
	DefaultBreakerFailures    = 5
	DefaultBreakerReset       = 30 * time.Second
	DefaultBreakerHalfOpen    = 1
)

// Config is the root configuration structure for transvox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings for the HTTP gateway.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Debug adds a diagnostic stack to failure responses.
	Debug bool `yaml:"debug"`

	// MaxUploadBytes caps the request body of an upload. Default 10 MiB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// ShutdownTimeout bounds graceful shutdown. Default 15 s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which implementation backs each external
// dependency. Each entry selects a named factory registered in the [Registry].
type ProvidersConfig struct {
	// Staging is the remote media store (e.g., "cloudinary").
	Staging ProviderEntry `yaml:"staging"`

	// Translation is the primary speech translation backend.
	Translation ProviderEntry `yaml:"translation"`

	// TranslationFallbacks are tried in order when the primary fails or its
	// circuit breaker is open.
	TranslationFallbacks []ProviderEntry `yaml:"translation_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "cloudinary", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1").
	Model string `yaml:"model"`

	// Timeout bounds a single call to the provider. Zero uses the provider default.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// OptString returns Options[key] if it is a string, otherwise "".
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptDuration parses Options[key] as a Go duration string ("15m").
// It returns 0 if the key is absent or unparsable.
func (e ProviderEntry) OptDuration(key string) time.Duration {
	d, err := time.ParseDuration(e.OptString(key))
	if err != nil {
		return 0
	}
	return d
}

// AnalyzerConfig configures speech detection.
type AnalyzerConfig struct {
	// Decoder selects the silence detection backend ("ffmpeg" or "native").
	// Defaults to ffmpeg.
	Decoder ProviderEntry `yaml:"decoder"`

	// NoiseFloorDB is the silence threshold in dBFS. Default -30.
	NoiseFloorDB *float64 `yaml:"noise_floor_db"`

	// MinSilence is the shortest silence run counted. Default 0.5 s.
	MinSilence time.Duration `yaml:"min_silence"`

	// SpeechThresholdPercent is the minimum speech share (inclusive) for a
	// clip to count as speech. Default 15.
	SpeechThresholdPercent *float64 `yaml:"speech_threshold_percent"`

	// Workers bounds concurrent decodes. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// Settings converts the configured thresholds into analyzer settings,
// substituting defaults for unset values.
func (a AnalyzerConfig) Settings() analyzer.Settings {
	s := analyzer.DefaultSettings()
	if a.NoiseFloorDB != nil {
		s.NoiseFloorDB = *a.NoiseFloorDB
	}
	if a.MinSilence > 0 {
		s.MinSilence = a.MinSilence
	}
	if a.SpeechThresholdPercent != nil {
		s.SpeechThresholdPercent = *a.SpeechThresholdPercent
	}
	return s
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	// TranslateSource chooses which buffer is forwarded for translation.
	// Default "original".
	TranslateSource TranslateSource `yaml:"translate_source"`

	// CleanupTimeout bounds the deferred delete of the staged resource.
	// Default 10 s.
	CleanupTimeout time.Duration `yaml:"cleanup_timeout"`

	// DownloadMaxElapsed bounds retries while fetching the processed
	// variant. Default 20 s.
	DownloadMaxElapsed time.Duration `yaml:"download_max_elapsed"`
}

// ResilienceConfig configures the circuit breakers around translation backends.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Analyzer.Decoder.Name == "" {
		cfg.Analyzer.Decoder.Name = "ffmpeg"
	}
	if cfg.Pipeline.TranslateSource == "" {
		cfg.Pipeline.TranslateSource = SourceOriginal
	}
	if cfg.Pipeline.CleanupTimeout == 0 {
		cfg.Pipeline.CleanupTimeout = DefaultCleanupTimeout
	}
	if cfg.Pipeline.DownloadMaxElapsed == 0 {
		cfg.Pipeline.DownloadMaxElapsed = DefaultDownloadMaxElapsed
	}
	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultBreakerFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultBreakerReset
	}
	if cfg.Resilience.HalfOpenMax == 0 {
		cfg.Resilience.HalfOpenMax = DefaultBreakerHalfOpen
	}
}
