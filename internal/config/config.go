package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	FolderPairs      []FolderPair `yaml:"folder_pairs"       json:"folder_pairs"`
	Schedule         string       `yaml:"schedule"           json:"schedule"`
	SchedulePaused   bool         `yaml:"schedule_paused"    json:"schedule_paused"`
	DBPath           string       `yaml:"db_path"            json:"-"`
	HTTPAddr         string       `yaml:"http_addr"          json:"-"`
	WorkersPerDevice int          `yaml:"workers_per_device" json:"workers_per_device"`
	ErrorMode        string       `yaml:"error_mode"         json:"error_mode"`
	PromptTimeoutSec int          `yaml:"prompt_timeout_sec" json:"prompt_timeout_sec"`
	LogLevel         string       `yaml:"log_level"          json:"-"`
}

// FolderPair is one source → target mirror.
type FolderPair struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// Error-prompt policies applied when no operator answers via the API.
const (
	ErrorModePrompt = "prompt" // publish the prompt, wait for an answer, ignore on timeout
	ErrorModeIgnore = "ignore" // answer ignore immediately
	ErrorModeRetry  = "retry"  // answer retry once, then ignore
)

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Schedule == "" {
		c.Schedule = "0 2 * * *"
	}
	if c.DBPath == "" {
		c.DBPath = "/data/parsync.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.WorkersPerDevice == 0 {
		c.WorkersPerDevice = 1
	}
	if c.ErrorMode == "" {
		c.ErrorMode = ErrorModePrompt
	}
	if c.PromptTimeoutSec == 0 {
		c.PromptTimeoutSec = 60
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// validate rejects values the engine cannot work with.
func (c *Config) validate() error {
	switch c.ErrorMode {
	case ErrorModePrompt, ErrorModeIgnore, ErrorModeRetry:
	default:
		return fmt.Errorf("invalid error_mode %q", c.ErrorMode)
	}
	for i, fp := range c.FolderPairs {
		if fp.Source == "" || fp.Target == "" {
			return fmt.Errorf("folder_pairs[%d]: source and target are required", i)
		}
	}
	return nil
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the server
// can start without a mounted config file (useful for bare Docker runs).
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return &cfg, nil
}
