package pitwall

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxIterations != 2 {
		t.Errorf("expected 2 max iterations, got %d", cfg.MaxIterations)
	}
	if cfg.TurnDeadline != 90*time.Second {
		t.Errorf("expected 90s turn deadline, got %s", cfg.TurnDeadline)
	}
	if cfg.PerCallTimeout != 15*time.Second {
		t.Errorf("expected 15s per-call timeout, got %s", cfg.PerCallTimeout)
	}
	if cfg.CompletenessThreshold != 0.7 {
		t.Errorf("expected completeness threshold 0.7, got %v", cfg.CompletenessThreshold)
	}
	if !cfg.EnableEventBus || !cfg.EnableMemory {
		t.Error("event bus and memory are on by default")
	}
}

func TestWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{MaxIterations: 5}.withDefaults()
	if cfg.MaxIterations != 5 {
		t.Errorf("explicit value must survive, got %d", cfg.MaxIterations)
	}
	if cfg.TurnDeadline != 90*time.Second {
		t.Errorf("zero deadline must take the default, got %s", cfg.TurnDeadline)
	}
	if cfg.WeightExpression == "" {
		t.Error("zero weight expression must take the default")
	}
	// Booleans are left alone: a zero config means both features off.
	if cfg.EnableEventBus || cfg.EnableMemory {
		t.Error("withDefaults must not flip feature toggles")
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "max_iterations: 4\nturn_deadline: 30s\ncompleteness_threshold: 0.9\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxIterations != 4 {
		t.Errorf("expected 4 max iterations, got %d", cfg.MaxIterations)
	}
	if cfg.TurnDeadline != 30*time.Second {
		t.Errorf("expected 30s turn deadline, got %s", cfg.TurnDeadline)
	}
	if cfg.CompletenessThreshold != 0.9 {
		t.Errorf("expected completeness threshold 0.9, got %v", cfg.CompletenessThreshold)
	}
	// Unset keys keep their defaults.
	if cfg.SchemaRetries != 2 {
		t.Errorf("unset schema_retries must default to 2, got %d", cfg.SchemaRetries)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if ErrorCode(err) != ErrCodeConfiguration {
		t.Errorf("expected %s, got %s", ErrCodeConfiguration, ErrorCode(err))
	}
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_iterations: [not a number"), 0o600); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for malformed yaml")
	}
	if ErrorCode(err) != ErrCodeConfiguration {
		t.Errorf("expected %s, got %s", ErrCodeConfiguration, ErrorCode(err))
	}
}
