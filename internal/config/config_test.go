package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseKeepsDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("epochs: 10\nbatch_size: 32\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Epochs != 10 || cfg.BatchSize != 32 {
		t.Fatalf("unexpected parsed values: %+v", cfg)
	}
	if cfg.LearningRate != 3e-2 || cfg.FinalLearningRate != 1e-4 {
		t.Fatalf("learning rate defaults lost: %g %g", cfg.LearningRate, cfg.FinalLearningRate)
	}
	if cfg.ImageHeight != 96 || cfg.ImageWidth != 96 || cfg.ImageChannels != 3 {
		t.Fatalf("geometry defaults lost: %+v", cfg)
	}
}

func TestParseRejectsUnknownKey(t *testing.T) {
	if _, err := Parse(strings.NewReader("train_root_a: /data\n")); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "dataset_root: /data/salicon\nlog_dir: /tmp/logs\nepochs: 4\nworker_count: 2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.ApplyOverrides(Overrides{Epochs: 7, LearningRate: 0.01, DatasetRoot: ""})
	if cfg.Epochs != 7 {
		t.Fatalf("expected epochs override, got %d", cfg.Epochs)
	}
	if cfg.LearningRate != 0.01 {
		t.Fatalf("expected lr override, got %g", cfg.LearningRate)
	}
	if cfg.DatasetRoot != "/data/salicon" {
		t.Fatalf("empty override must not clear dataset root, got %q", cfg.DatasetRoot)
	}
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected worker_count 2, got %d", cfg.WorkerCount)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no dataset", func(c *Config) { c.DatasetRoot = "" }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }},
		{"zero val frequency", func(c *Config) { c.ValFrequency = 0 }},
		{"final lr above initial", func(c *Config) { c.FinalLearningRate = 1 }},
		{"bad geometry", func(c *Config) { c.ImageChannels = 0 }},
		{"zero log frequency", func(c *Config) { c.LogFrequency = 0 }},
		{"zero print frequency", func(c *Config) { c.PrintFrequency = 0 }},
		{"no results dir", func(c *Config) { c.ResultsDir = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.LogFrequency = -1
	before := *cfg
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected negative log frequency to be rejected")
	}
	if *cfg != before {
		t.Fatalf("Validate modified the config: %+v", *cfg)
	}
}
