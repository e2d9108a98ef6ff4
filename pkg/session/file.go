package session

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML shape of a configuration file. Only connection
// settings live here; credentials come from the default chain.
//
//	region: eu-west-1
//	endpoint: http://localhost:8000
//	max_retries: 5
type FileConfig struct {
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	MaxRetries int    `yaml:"max_retries"`
}

// LoadConfigFile reads a YAML configuration file into a Config. Unset fields
// keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration bytes.
func ParseConfig(data []byte) (*Config, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := DefaultConfig()
	if fc.Region != "" {
		cfg.Region = fc.Region
	}
	if fc.Endpoint != "" {
		cfg.Endpoint = fc.Endpoint
	}
	if fc.MaxRetries > 0 {
		cfg.MaxRetries = fc.MaxRetries
	}
	return cfg, nil
}
