package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WarmupEntry is a URL captured once at startup to prime the cache.
type WarmupEntry struct {
	URL string `yaml:"url"`
}

// WarmupConfig is the top-level YAML document for startup captures.
type WarmupConfig struct {
	URLs []WarmupEntry `yaml:"urls"`
}

// LoadWarmup reads and validates a warmup YAML file. A missing file yields
// an os.ErrNotExist-wrapped error; callers skip warmup in that case.
func LoadWarmup(path string) (*WarmupConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("warmup config: %w", err)
	}
	var cfg WarmupConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("warmup config: %w", err)
	}
	for i, e := range cfg.URLs {
		if e.URL == "" {
			return nil, fmt.Errorf("warmup config: urls[%d] missing url", i)
		}
	}
	return &cfg, nil
}
