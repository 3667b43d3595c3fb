package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"s2s":        {"openai-realtime", "gemini-live"},
	"llm":        {"openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "ollama"},
	"embeddings": {"openai", "gemini"},
	"vad":        {"energy"},
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
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
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Twilio credentials are all or nothing. A partially configured carrier
	// would fail on the first dial, which is a worse place to find out.
	twilioFields := 0
	for _, v := range []string{cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber} {
		if v != "" {
			twilioFields++
		}
	}
	if twilioFields > 0 && twilioFields < 3 {
		errs = append(errs, errors.New("twilio requires account_sid, auth_token and from_number together"))
	}
	if twilioFields == 0 {
		slog.Warn("twilio is not configured; outbound dialing will be unavailable")
	}

	// Dialer
	if cfg.Dialer.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("dialer.max_attempts %d is negative", cfg.Dialer.MaxAttempts))
	}
	for _, d := range []struct {
		name  string
		value Duration
	}{
		{"dialer.retry_delay", cfg.Dialer.RetryDelay},
		{"dialer.poll_interval", cfg.Dialer.PollInterval},
		{"dialer.idle_delay", cfg.Dialer.IdleDelay},
		{"dialer.dial_gap", cfg.Dialer.DialGap},
	} {
		if d.value.Std() < 0 {
			errs = append(errs, fmt.Errorf("%s %s is negative", d.name, d.value.Std()))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("s2s", cfg.Providers.S2S.Name)
	validateProviderName("s2s", cfg.Providers.S2SFallback.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.LLMFallback.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Provider availability warnings
	if cfg.Providers.S2S.Name == "" {
		slog.Warn("providers.s2s is not configured; calls cannot be bridged to an AI session")
	}
	if cfg.Providers.S2SFallback.Name != "" && cfg.Providers.S2SFallback.Name == cfg.Providers.S2S.Name {
		slog.Warn("providers.s2s_fallback names the same provider as providers.s2s; the fallback adds nothing")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; call summaries will not be generated")
	}

	// Embeddings ↔ storage dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("providers.embeddings is configured but storage.embedding_dimensions is not set"))
	}

	// Storage availability
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; call records and the knowledge base will live in memory only")
	}

	// Knowledge
	if cfg.Knowledge.TopK < 0 {
		errs = append(errs, fmt.Errorf("knowledge.top_k %d is negative", cfg.Knowledge.TopK))
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
