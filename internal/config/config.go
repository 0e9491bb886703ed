package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the global configuration for the ROM daemon.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Model     ModelConfig     `yaml:"model"`
	Watch     WatchConfig     `yaml:"watch"`
	Server    ServerConfig    `yaml:"server"`
	Guardrail GuardrailConfig `yaml:"guardrail"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// StoreConfig locates the training data: either a Postgres table or a CSV
// file whose first parameter_dim columns hold the parameter vector.
type StoreConfig struct {
	Table        string `yaml:"table"`
	CSVPath      string `yaml:"csv_path"`
	ParameterDim int    `yaml:"parameter_dim"`
}

// ModelConfig selects the reduction, approximation, and scaling used to
// build the surrogate.
type ModelConfig struct {
	Kernel    string  `yaml:"kernel"`
	Smoothing float64 `yaml:"smoothing"`
	Neighbors int     `yaml:"neighbors"`
	Epsilon   float64 `yaml:"epsilon"`
	Degree    *int    `yaml:"degree"`
	PODRank   int     `yaml:"pod_rank"`
	PODEnergy float64 `yaml:"pod_energy"`
	Scaler    string  `yaml:"scaler"`
}

type WatchConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SlotName    string `yaml:"slot_name"`
	Publication string `yaml:"publication"`
	Debounce    string `yaml:"debounce"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type GuardrailConfig struct {
	MaxSamples      int `yaml:"max_samples"`
	MaxParameterDim int `yaml:"max_parameter_dim"`
	MaxSnapshotDim  int `yaml:"max_snapshot_dim"`
}

// DebounceDuration parses the watch debounce interval, defaulting to 2s.
func (w WatchConfig) DebounceDuration() (time.Duration, error) {
	if w.Debounce == "" {
		return 2 * time.Second, nil
	}
	d, err := time.ParseDuration(w.Debounce)
	if err != nil {
		return 0, fmt.Errorf("parsing watch debounce: %w", err)
	}
	return d, nil
}

// Load reads the configuration from the specified file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}
