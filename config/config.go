// Package config loads and persists the orchestration core's runtime
// configuration: provider selection and credentials, the installer command
// template, request timeouts, and recovery bounds. Values load from a YAML
// file and can be overridden by environment variables, mirroring the
// envOr/envIntOr/envDurationOr pattern the rest of this corpus uses for its
// own servers.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds the connection details for one configured LLM
// provider. APIKey is tagged sensitive so it is masked on every read and
// accepts the "preserve existing value" convention on write.
type ProviderConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Model    string `yaml:"model" json:"model"`
	APIKey   string `yaml:"apiKey" json:"apiKey" sensitive:"true"`
}

// Config is the full set of operator-controlled settings for one
// orchestration core process.
type Config struct {
	// Provider selects which entry of Providers is active.
	Provider string `yaml:"provider" json:"provider"`
	// Providers maps a provider name ("anthropic", "openai", "bedrock",
	// "google", "compatible") to its connection details.
	Providers map[string]ProviderConfig `yaml:"providers" json:"providers"`
	// InstallerCommand is the classifier.InstallCommand template used to
	// synthesize install steps; "%s" is replaced with the resolved package
	// name, e.g. "!pip install %s" or "!pip install --index-url <private> %s".
	InstallerCommand string `yaml:"installerCommand" json:"installerCommand"`
	// RequestTimeout is loaded, overridden from the environment and saved
	// with the rest of the configuration. No server, handler or provider
	// client reads it, so it does not put a deadline on any request.
	RequestTimeout time.Duration `yaml:"requestTimeout" json:"requestTimeout"`
	// MaxRefinePerStep and MaxReplansPerRun mirror orchestrator.Config.
	MaxRefinePerStep int `yaml:"maxRefinePerStep" json:"maxRefinePerStep"`
	MaxReplansPerRun int `yaml:"maxReplansPerRun" json:"maxReplansPerRun"`
	// SessionStorePath is the JSON file backing the session store.
	SessionStorePath string `yaml:"sessionStorePath" json:"sessionStorePath"`
	// ListenAddr is the HTTP server's bind address.
	ListenAddr string `yaml:"listenAddr" json:"listenAddr"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		Provider:         "anthropic",
		Providers:        map[string]ProviderConfig{},
		InstallerCommand: "!pip install %s",
		RequestTimeout:   60 * time.Second,
		MaxRefinePerStep: 3,
		MaxReplansPerRun: 5,
		SessionStorePath: "sessions.json",
		ListenAddr:       ":8080",
	}
}

// Load reads path as YAML into Default()'s baseline, then applies
// environment overrides. A missing file is not an error: the defaults (plus
// any environment overrides) are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes cfg to path as YAML, via a temp-file-then-rename so a reader
// never observes a partially written file.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Provider = envOr("AGENTCORE_PROVIDER", cfg.Provider)
	cfg.InstallerCommand = envOr("AGENTCORE_INSTALLER_COMMAND", cfg.InstallerCommand)
	cfg.RequestTimeout = envDurationOr("AGENTCORE_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.MaxRefinePerStep = envIntOr("AGENTCORE_MAX_REFINE_PER_STEP", cfg.MaxRefinePerStep)
	cfg.MaxReplansPerRun = envIntOr("AGENTCORE_MAX_REPLANS_PER_RUN", cfg.MaxReplansPerRun)
	cfg.SessionStorePath = envOr("AGENTCORE_SESSION_STORE_PATH", cfg.SessionStorePath)
	cfg.ListenAddr = envOr("AGENTCORE_LISTEN_ADDR", cfg.ListenAddr)

	if key := os.Getenv("AGENTCORE_API_KEY"); key != "" && cfg.Provider != "" {
		p := cfg.Providers[cfg.Provider]
		p.APIKey = key
		if cfg.Providers == nil {
			cfg.Providers = map[string]ProviderConfig{}
		}
		cfg.Providers[cfg.Provider] = p
	}
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

const maskPrefix = "****"

// Mask returns a copy of cfg with every field tagged sensitive:"true"
// replaced by "****" followed by up to its last 4 characters, so a GET
// /config response never echoes a usable secret.
func Mask(cfg Config) Config {
	masked := cfg
	masked.Providers = make(map[string]ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		maskSensitiveFields(reflect.ValueOf(&p).Elem())
		masked.Providers[name] = p
	}
	return masked
}

func maskSensitiveFields(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("sensitive") != "true" {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() != reflect.String {
			continue
		}
		fv.SetString(maskValue(fv.String()))
	}
}

func maskValue(secret string) string {
	if secret == "" {
		return ""
	}
	tail := secret
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return maskPrefix + tail
}

// ApplyUpdate merges incoming over existing, preserving existing's value for
// any sensitive field whose incoming value begins with "****" (the client is
// echoing back a masked read rather than supplying a new secret).
func ApplyUpdate(existing, incoming Config) Config {
	merged := incoming
	merged.Providers = make(map[string]ProviderConfig, len(incoming.Providers))
	for name, in := range incoming.Providers {
		cur := in
		if old, ok := existing.Providers[name]; ok {
			preserveMaskedFields(reflect.ValueOf(&cur).Elem(), reflect.ValueOf(old))
		}
		merged.Providers[name] = cur
	}
	return merged
}

func preserveMaskedFields(incoming, existing reflect.Value) {
	t := incoming.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("sensitive") != "true" {
			continue
		}
		fv := incoming.Field(i)
		if fv.Kind() != reflect.String {
			continue
		}
		if isMasked(fv.String()) {
			fv.SetString(existing.Field(i).String())
		}
	}
}

func isMasked(s string) bool {
	return len(s) >= len(maskPrefix) && s[:len(maskPrefix)] == maskPrefix
}
