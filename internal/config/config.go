package config

import (
	"bytes"
	"io"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	DatasetRoot       string  `yaml:"dataset_root"`
	LogDir            string  `yaml:"log_dir"`
	ResultsDir        string  `yaml:"results_dir"`
	LearningRate      float64 `yaml:"learning_rate"`
	FinalLearningRate float64 `yaml:"final_learning_rate"`
	BatchSize         int     `yaml:"batch_size"`
	Epochs            int     `yaml:"epochs"`
	ValFrequency      int     `yaml:"val_frequency"`
	LogFrequency      int     `yaml:"log_frequency"`
	PrintFrequency    int     `yaml:"print_frequency"`
	WorkerCount       int     `yaml:"worker_count"`
	Seed              int64   `yaml:"seed"`
	ImageHeight       int     `yaml:"image_height"`
	ImageWidth        int     `yaml:"image_width"`
	ImageChannels     int     `yaml:"image_channels"`
	MapHeight         int     `yaml:"map_height"`
	MapWidth          int     `yaml:"map_width"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DatasetRoot    string
	LogDir         string
	ResultsDir     string
	LearningRate   float64
	BatchSize      int
	Epochs         int
	ValFrequency   int
	LogFrequency   int
	PrintFrequency int
	WorkerCount    int
	Seed           int64
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		DatasetRoot:       "data",
		LogDir:            "logs",
		ResultsDir:        ".",
		LearningRate:      3e-2,
		FinalLearningRate: 1e-4,
		BatchSize:         128,
		Epochs:            1000,
		ValFrequency:      2,
		LogFrequency:      10,
		PrintFrequency:    10,
		WorkerCount:       runtime.NumCPU(),
		ImageHeight:       96,
		ImageWidth:        96,
		ImageChannels:     3,
		MapHeight:         48,
		MapWidth:          48,
	}
}

// Load reads and validates a Config from YAML. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := Default()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DatasetRoot != "" {
		c.DatasetRoot = o.DatasetRoot
	}
	if o.LogDir != "" {
		c.LogDir = o.LogDir
	}
	if o.ResultsDir != "" {
		c.ResultsDir = o.ResultsDir
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.ValFrequency > 0 {
		c.ValFrequency = o.ValFrequency
	}
	if o.LogFrequency > 0 {
		c.LogFrequency = o.LogFrequency
	}
	if o.PrintFrequency > 0 {
		c.PrintFrequency = o.PrintFrequency
	}
	if o.WorkerCount > 0 {
		c.WorkerCount = o.WorkerCount
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DatasetRoot == "" {
		return errors.New("dataset_root must be set")
	}
	if c.LogDir == "" {
		return errors.New("log_dir must be set")
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.FinalLearningRate <= 0 || c.FinalLearningRate > c.LearningRate {
		return errors.Errorf("final_learning_rate must be in (0, %g] (got %g)", c.LearningRate, c.FinalLearningRate)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.Epochs <= 0 {
		return errors.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.ValFrequency <= 0 {
		return errors.Errorf("val_frequency must be > 0 (got %d)", c.ValFrequency)
	}
	if c.WorkerCount <= 0 {
		return errors.Errorf("worker_count must be > 0 (got %d)", c.WorkerCount)
	}
	if c.ImageHeight <= 0 || c.ImageWidth <= 0 || c.ImageChannels <= 0 {
		return errors.Errorf("image geometry must be positive (got %dx%dx%d)", c.ImageHeight, c.ImageWidth, c.ImageChannels)
	}
	if c.MapHeight <= 0 || c.MapWidth <= 0 {
		return errors.Errorf("map geometry must be positive (got %dx%d)", c.MapHeight, c.MapWidth)
	}
	if c.LogFrequency <= 0 {
		return errors.Errorf("log_frequency must be > 0 (got %d)", c.LogFrequency)
	}
	if c.PrintFrequency <= 0 {
		return errors.Errorf("print_frequency must be > 0 (got %d)", c.PrintFrequency)
	}
	if c.ResultsDir == "" {
		return errors.New("results_dir must be set")
	}
	return nil
}
