package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"nft-attribute-registry/internal/core/domain"
)

// Config holds the registry service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Registry RegistryConfig `mapstructure:"registry"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RegistryConfig holds the deployment-fixed registry policies.
type RegistryConfig struct {
	// ContextMode is "single" or "per-platform". Decided once at
	// deployment; records written under one mode are not readable under
	// the other.
	ContextMode string `mapstructure:"context_mode"`
	// Governor is the identity allowed to register versions and manage the
	// platform allow-list.
	Governor string `mapstructure:"governor"`
	// InitPolicy is "platform" or "minter"; see domain.InitPolicy.
	InitPolicy string `mapstructure:"init_policy"`
}

// LoggingConfig holds the zap logger settings.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "registry.db")
	v.SetDefault("registry.context_mode", string(domain.ContextSingle))
	v.SetDefault("registry.governor", "governor")
	v.SetDefault("registry.init_policy", string(domain.InitByPlatform))
	v.SetDefault("logging.development", false)
}

// Load reads the configuration from defaults, an optional registry.toml in the
// working directory, and REGISTRY_* environment variables.
func Load() (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("registry")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the deployment-fixed policy choices.
func (c *Config) Validate() error {
	switch domain.ContextMode(c.Registry.ContextMode) {
	case domain.ContextSingle, domain.ContextPerPlatform:
	default:
		return fmt.Errorf("invalid registry.context_mode %q", c.Registry.ContextMode)
	}
	switch domain.InitPolicy(c.Registry.InitPolicy) {
	case domain.InitByPlatform, domain.InitByMinter:
	default:
		return fmt.Errorf("invalid registry.init_policy %q", c.Registry.InitPolicy)
	}
	if c.Registry.Governor == "" {
		return fmt.Errorf("registry.governor must not be empty")
	}
	return nil
}

// ContextMode returns the typed context mode.
func (c *Config) ContextMode() domain.ContextMode {
	return domain.ContextMode(c.Registry.ContextMode)
}

// InitPolicy returns the typed initialization policy.
func (c *Config) InitPolicy() domain.InitPolicy {
	return domain.InitPolicy(c.Registry.InitPolicy)
}
