package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// YAMLConfig mirrors the on-disk dcm.yaml structure. Every section is a
// pointer so mergo can tell "absent" apart from "zero value" when merging
// onto the built-in defaults; Environment is a plain string, applied by
// load only when non-empty.
type YAMLConfig struct {
	Environment string           `yaml:"environment"`
	Server      *ServerConfig    `yaml:"server"`
	Database    *DatabaseConfig  `yaml:"database"`
	Gateway     *GatewayConfig   `yaml:"gateway"`
	Auth        *AuthConfig      `yaml:"auth"`
	Routing     *RoutingConfig   `yaml:"routing"`
	Cleanup     *CleanupConfig   `yaml:"cleanup"`
	RateLimit   *RateLimitConfig `yaml:"rate_limit"`
}

func load(_ context.Context, configDir string) (*Config, error) {
	yamlCfg, err := loadYAML(configDir)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	cfg.configDir = configDir

	if err := mergeInto(cfg, yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}

	if yamlCfg.Environment != "" {
		cfg.Environment = yamlCfg.Environment
	}
	if env := os.Getenv("DCM_ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = os.Getenv("DCM_DATABASE_DSN")
	}

	cfg.Auth.secretVal = os.Getenv(cfg.Auth.SecretEnv)

	return cfg, nil
}

// loadYAML reads dcm.yaml from configDir. A missing file is not an error:
// deployments may run entirely off built-in defaults plus environment
// variables.
func loadYAML(configDir string) (*YAMLConfig, error) {
	cfg := &YAMLConfig{}
	if configDir == "" {
		return cfg, nil
	}

	path := filepath.Join(configDir, "dcm.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return cfg, nil
}

// mergeInto overlays non-zero fields from yamlCfg onto the built-in
// defaults already populated in cfg.
func mergeInto(cfg *Config, yamlCfg *YAMLConfig) error {
	if yamlCfg.Server != nil {
		if err := mergo.Merge(cfg.Server, yamlCfg.Server, mergo.WithOverride); err != nil {
			return err
		}
	}
	if yamlCfg.Database != nil {
		if err := mergo.Merge(cfg.Database, yamlCfg.Database, mergo.WithOverride); err != nil {
			return err
		}
	}
	if yamlCfg.Gateway != nil {
		if err := mergo.Merge(cfg.Gateway, yamlCfg.Gateway, mergo.WithOverride); err != nil {
			return err
		}
	}
	if yamlCfg.Auth != nil {
		if err := mergo.Merge(cfg.Auth, yamlCfg.Auth, mergo.WithOverride); err != nil {
			return err
		}
	}
	if yamlCfg.Routing != nil {
		if err := mergo.Merge(cfg.Routing, yamlCfg.Routing, mergo.WithOverride); err != nil {
			return err
		}
	}
	if yamlCfg.Cleanup != nil {
		if err := mergo.Merge(cfg.Cleanup, yamlCfg.Cleanup, mergo.WithOverride); err != nil {
			return err
		}
	}
	if yamlCfg.RateLimit != nil {
		if err := mergo.Merge(cfg.RateLimit, yamlCfg.RateLimit, mergo.WithOverride); err != nil {
			return err
		}
	}
	return nil
}
