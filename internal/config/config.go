package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultUnits   = "lj"
	DefaultDataDir = ".mdscript"
	DefaultFormat  = "table"
	DefaultBinary  = "lmp"
	DefaultWorkers = 4
)

var formats = map[string]bool{"table": true, "json": true, "yaml": true}

type Config struct {
	Units           string       `yaml:"units"`
	Strict          bool         `yaml:"strict"`
	DataDir         string       `yaml:"data_dir"`
	Format          string       `yaml:"format"`
	Workers         int          `yaml:"workers"`
	Engine          EngineConfig `yaml:"engine"`
	ExtraDirectives []string     `yaml:"extra_directives"`
}

// EngineConfig names the external engine that exec forwards directives to.
type EngineConfig struct {
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"`
}

func DefaultConfig() *Config {
	return &Config{
		Units:   DefaultUnits,
		Strict:  true,
		DataDir: DefaultDataDir,
		Format:  DefaultFormat,
		Workers: DefaultWorkers,
		Engine: EngineConfig{
			Binary: DefaultBinary,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if !formats[c.Format] {
		return fmt.Errorf("unknown output format %q", c.Format)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Engine.Binary == "" {
		return fmt.Errorf("engine binary must be set")
	}
	return nil
}
