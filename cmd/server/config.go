package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, read from an optional YAML file with
// environment variables taking precedence.
type Config struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url"`
	// SchemaPath points at the rule schema JSON document. Empty means the
	// embedded default schema.
	SchemaPath string `yaml:"schema_path"`
	StateFile  string `yaml:"state_file"`

	Retry struct {
		MaxAttempts uint64 `yaml:"max_attempts"`
		BaseDelayMS int    `yaml:"base_delay_ms"`
	} `yaml:"retry"`

	// InputKeys are the required input store keys for a calculation run.
	InputKeys []string `yaml:"input_keys"`
	// ExecutionOrder overrides the default calculator order.
	ExecutionOrder []string `yaml:"execution_order"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Addr = ":8080"
	cfg.StateFile = "data/calculation_state.json"
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BaseDelayMS = 500
	cfg.InputKeys = []string{"empresa", "balanco", "dre", "historico"}
	return cfg
}

// loadConfig reads path when it exists, then applies env overrides. A
// missing file is fine; a malformed one is not.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// run on defaults
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("SCHEMA_PATH"); v != "" {
		cfg.SchemaPath = v
	}
	if v := os.Getenv("STATE_FILE"); v != "" {
		cfg.StateFile = v
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelayMS <= 0 {
		cfg.Retry.BaseDelayMS = 500
	}

	return cfg, nil
}

func (c Config) baseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
}
