package config

import "fmt"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DebugChanged bool
	NewDebug     bool

	// AnalyzerChanged is true when any speech threshold differs.
	AnalyzerChanged bool
	NewAnalyzer     AnalyzerConfig

	// RestartRequired lists the sections that changed but are only read at
	// startup (providers, listen address, pipeline timeouts).
	RestartRequired []string
}

// Changed reports whether d carries any hot-reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.DebugChanged || d.AnalyzerChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.Debug != new.Server.Debug {
		d.DebugChanged = true
		d.NewDebug = new.Server.Debug
	}

	if old.Analyzer.Settings() != new.Analyzer.Settings() {
		d.AnalyzerChanged = true
		d.NewAnalyzer = new.Analyzer
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.MaxUploadBytes != new.Server.MaxUploadBytes {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameEntry(old.Providers.Staging, new.Providers.Staging) ||
		!sameEntry(old.Providers.Translation, new.Providers.Translation) ||
		len(old.Providers.TranslationFallbacks) != len(new.Providers.TranslationFallbacks) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	} else {
		for i := range old.Providers.TranslationFallbacks {
			if !sameEntry(old.Providers.TranslationFallbacks[i], new.Providers.TranslationFallbacks[i]) {
				d.RestartRequired = append(d.RestartRequired, "providers")
				break
			}
		}
	}
	if !sameEntry(old.Analyzer.Decoder, new.Analyzer.Decoder) || old.Analyzer.Workers != new.Analyzer.Workers {
		d.RestartRequired = append(d.RestartRequired, "analyzer.decoder")
	}
	if old.Pipeline != new.Pipeline {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}

	return d
}

// sameEntry compares the scalar fields of two provider entries. Options are
// compared by key set and string form only.
func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model || a.Timeout != b.Timeout {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(w) {
			return false
		}
	}
	return true
}
