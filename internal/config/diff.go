package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ExtractorChanged is true when any extraction constant differs. New
	// recordings pick up the change; running streams keep their settings.
	ExtractorChanged bool

	// AnalysisChanged is true when timeouts or paraphrase settings differ.
	AnalysisChanged bool

	// RestartRequired lists the top-level keys whose change only takes effect
	// after a restart (listen address, TLS, providers, breakers).
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ExtractorChanged && !d.AnalysisChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.ExtractorChanged = old.Extractor != new.Extractor
	d.AnalysisChanged = old.Analysis != new.Analysis

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.RequestTimeout != new.Server.RequestTimeout ||
		old.Server.MaxUploadBytes != new.Server.MaxUploadBytes ||
		!sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameProviders(a, b ProvidersConfig) bool {
	return sameEntry(a.ASR, b.ASR) && sameEntry(a.LLM, b.LLM) &&
		sameEntries(a.ASRFallbacks, b.ASRFallbacks) && sameEntries(a.LLMFallbacks, b.LLMFallbacks)
}

func sameEntries(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameEntry(a[i], b[i]) {
			return false
		}
	}
	return true
}

// sameEntry compares the scalar fields and the options map. Option values
// are compared with ==, which is enough for the scalars YAML produces.
func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || !comparableEqual(av, bv) {
			return false
		}
	}
	return true
}

func comparableEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
