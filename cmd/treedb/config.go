package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration file given by -config. Without
// -config the defaults apply; a -config file that cannot be read is an error.
// Flags override it, and TREEDB_DB overrides DB when the -db flag is not
// given.
type Config struct {
	DB       string        `yaml:"db"`
	LogLevel string        `yaml:"log_level,omitempty"`
	Verbose  bool          `yaml:"verbose,omitempty"`
	MmapSize int           `yaml:"mmap_size,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

func loadConfig(path string) (Config, error) {
	cfg := Config{LogLevel: "info"}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
