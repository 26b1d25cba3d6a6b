package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "anthropic" {
		t.Fatalf("expected default provider anthropic, got %q", cfg.Provider)
	}
	if cfg.MaxRefinePerStep != 3 || cfg.MaxReplansPerRun != 5 {
		t.Fatalf("unexpected recovery bounds: %+v", cfg)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Provider = "openai"
	cfg.Providers["openai"] = ProviderConfig{Endpoint: "https://api.openai.com", Model: "gpt-4o", APIKey: "sk-abcd1234"}
	cfg.RequestTimeout = 30 * time.Second

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Provider != "openai" || loaded.Providers["openai"].APIKey != "sk-abcd1234" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if loaded.RequestTimeout != 30*time.Second {
		t.Fatalf("expected RequestTimeout to round-trip, got %v", loaded.RequestTimeout)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	t.Setenv("AGENTCORE_PROVIDER", "bedrock")
	t.Setenv("AGENTCORE_MAX_REFINE_PER_STEP", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "bedrock" {
		t.Fatalf("expected env override provider bedrock, got %q", cfg.Provider)
	}
	if cfg.MaxRefinePerStep != 7 {
		t.Fatalf("expected env override MaxRefinePerStep 7, got %d", cfg.MaxRefinePerStep)
	}
}

func TestMaskReplacesSensitiveFieldsWithTail(t *testing.T) {
	cfg := Default()
	cfg.Providers["anthropic"] = ProviderConfig{Model: "claude", APIKey: "sk-ant-0123456789"}

	masked := Mask(cfg)

	got := masked.Providers["anthropic"].APIKey
	if got != "****6789" {
		t.Fatalf("expected masked tail ****6789, got %q", got)
	}
	// Mask must not mutate the original.
	if cfg.Providers["anthropic"].APIKey != "sk-ant-0123456789" {
		t.Fatalf("Mask must not mutate its argument, got %q", cfg.Providers["anthropic"].APIKey)
	}
}

func TestApplyUpdatePreservesSecretBehindMaskedValue(t *testing.T) {
	existing := Default()
	existing.Providers["anthropic"] = ProviderConfig{Model: "claude", APIKey: "sk-ant-realsecret"}

	incoming := Default()
	incoming.Provider = "anthropic"
	incoming.Providers["anthropic"] = ProviderConfig{Model: "claude-new", APIKey: "****cret"}

	merged := ApplyUpdate(existing, incoming)

	got := merged.Providers["anthropic"]
	if got.APIKey != "sk-ant-realsecret" {
		t.Fatalf("expected masked POST to preserve existing secret, got %q", got.APIKey)
	}
	if got.Model != "claude-new" {
		t.Fatalf("expected non-sensitive field to update, got %q", got.Model)
	}
}

func TestApplyUpdateAcceptsNewSecretWhenNotMasked(t *testing.T) {
	existing := Default()
	existing.Providers["anthropic"] = ProviderConfig{APIKey: "sk-ant-old"}

	incoming := Default()
	incoming.Providers["anthropic"] = ProviderConfig{APIKey: "sk-ant-new"}

	merged := ApplyUpdate(existing, incoming)

	if merged.Providers["anthropic"].APIKey != "sk-ant-new" {
		t.Fatalf("expected a genuinely new secret to be accepted, got %q", merged.Providers["anthropic"].APIKey)
	}
}
