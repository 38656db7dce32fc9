package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Integrator != "rk4" {
		t.Errorf("expected integrator rk4, got %s", cfg.Integrator)
	}
	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if len(cfg.SweepDts) == 0 {
		t.Error("expected default sweep step sizes")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad integrator", func(c *Config) { c.Integrator = "leapfrog" }},
		{"bad activation", func(c *Config) { c.Activation = "sigmoid" }},
		{"zero dt", func(c *Config) { c.Dt = 0 }},
		{"tmax below dt", func(c *Config) { c.TMax = 0.01; c.Dt = 0.05 }},
		{"zero hidden", func(c *Config) { c.Hidden = 0 }},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero lr", func(c *Config) { c.LearningRate = 0 }},
		{"negative wd", func(c *Config) { c.WeightDecay = -1 }},
		{"test fraction one", func(c *Config) { c.TestFraction = 1 }},
		{"zero k", func(c *Config) { c.Hessian.K = 0 }},
		{"zero hessian batches", func(c *Config) { c.Hessian.Batches = 0 }},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("smoke")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Epochs != 20 {
		t.Errorf("expected 20 epochs, got %d", cfg.Epochs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("preset should validate: %v", err)
	}

	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestAllPresetsValidate(t *testing.T) {
	for _, name := range ListPresets() {
		if err := GetPreset(name).Validate(); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Integrator = "euler"
	cfg.Dt = 0.02
	cfg.Hidden = 16
	cfg.SweepDts = []float64{0.1, 0.05}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Integrator != "euler" || loaded.Dt != 0.02 || loaded.Hidden != 16 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if len(loaded.SweepDts) != 2 {
		t.Errorf("expected 2 sweep dts, got %d", len(loaded.SweepDts))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
