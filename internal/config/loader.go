package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"staging":     {"cloudinary"},
	"translation": {"http", "openai", "cascade"},
	"decoder":     {"ffmpeg", "native"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the environment, applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must not be negative, got %d", cfg.Server.MaxUploadBytes))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.Staging.Name == "" {
		errs = append(errs, errors.New("providers.staging.name is required"))
	}
	if cfg.Providers.Translation.Name == "" {
		errs = append(errs, errors.New("providers.translation.name is required"))
	}
	validateProviderName("staging", cfg.Providers.Staging.Name)
	validateProviderName("translation", cfg.Providers.Translation.Name)
	for i, fb := range cfg.Providers.TranslationFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.translation_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("translation", fb.Name)
	}
	validateProviderName("decoder", cfg.Analyzer.Decoder.Name)

	// Analyzer
	if p := cfg.Analyzer.SpeechThresholdPercent; p != nil && (*p < 0 || *p > 100) {
		errs = append(errs, fmt.Errorf("analyzer.speech_threshold_percent %.2f is out of range [0, 100]", *p))
	}
	if db := cfg.Analyzer.NoiseFloorDB; db != nil && *db > 0 {
		errs = append(errs, fmt.Errorf("analyzer.noise_floor_db %.2f must be <= 0 (dBFS)", *db))
	}
	if cfg.Analyzer.MinSilence < 0 {
		errs = append(errs, fmt.Errorf("analyzer.min_silence %s must not be negative", cfg.Analyzer.MinSilence))
	}
	if cfg.Analyzer.Workers < 0 {
		errs = append(errs, fmt.Errorf("analyzer.workers must not be negative, got %d", cfg.Analyzer.Workers))
	}

	// Pipeline
	if cfg.Pipeline.TranslateSource != "" && !cfg.Pipeline.TranslateSource.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.translate_source %q is invalid; valid values: original, processed", cfg.Pipeline.TranslateSource))
	}
	if cfg.Pipeline.CleanupTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.cleanup_timeout %s must not be negative", cfg.Pipeline.CleanupTimeout))
	}
	if cfg.Pipeline.DownloadMaxElapsed < 0 {
		errs = append(errs, fmt.Errorf("pipeline.download_max_elapsed %s must not be negative", cfg.Pipeline.DownloadMaxElapsed))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.HalfOpenMax < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	if cfg.Server.Debug {
		slog.Warn("server.debug is enabled; failure responses will include diagnostic stacks")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
