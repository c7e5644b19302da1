// Package config loads relorm configuration from relorm.yml and the
// environment.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config represents the relorm configuration
type Config struct {
	Database DatabaseConfig    `mapstructure:"database"`
	Loader   LoaderConfig      `mapstructure:"loader"`
	Morphs   map[string]string `mapstructure:"morphs"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// LoaderConfig represents relationship loader configuration
type LoaderConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// Load loads the configuration from relorm.yml or relorm.yaml in the
// current directory.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom loads the configuration from the given directory.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("loader.max_depth", 10)

	v.SetConfigName("relorm")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// GetDatabaseURL returns the database URL from the environment or config
// file, preferring DATABASE_URL.
func GetDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	cfg, err := Load()
	if err != nil {
		return ""
	}
	return cfg.Database.URL
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Loader.MaxDepth <= 0 {
		return fmt.Errorf("loader.max_depth must be positive, got: %d", cfg.Loader.MaxDepth)
	}
	for alias, class := range cfg.Morphs {
		if alias == "" || class == "" {
			return fmt.Errorf("morphs entries require both an alias and a class, got %q: %q", alias, class)
		}
	}
	return nil
}
