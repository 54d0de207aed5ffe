// Package config loads CLI configuration using Viper from, in order of
// precedence, command-line flags, CLAUSE_* environment variables and a
// YAML configuration file (.clause.yml by default).
//
// Example .clause.yml:
//
//	cache:
//	  max_size: 200
//	  ttl: 10m
//	log:
//	  level: warn
//	render:
//	  strict: true
//	  concurrency: 8
//	template:
//	  max_size: 4194304
//	store:
//	  root: ./clause-store
//	  owner: legal
//	watch:
//	  debounce: 250ms
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/benjaminschreck/go-clause/pkg/clause"
	"github.com/spf13/viper"
)

// EnvConfigFile names a configuration file to use instead of .clause.yml.
const EnvConfigFile = clause.EnvPrefix + "_CONFIG_FILE"

// Keys beyond the engine keys defined in package clause.
const (
	KeyStoreRoot     = "store.root"
	KeyStoreOwner    = "store.owner"
	KeyWatchDebounce = "watch.debounce"
)

// Defaults for the CLI-only settings.
const (
	DefaultStoreRoot     = "clause-store"
	DefaultStoreOwner    = "default"
	DefaultWatchDebounce = 300 * time.Millisecond
)

// Config is the resolved CLI configuration.
type Config struct {
	Engine        *clause.Config
	StoreRoot     string
	StoreOwner    string
	WatchDebounce time.Duration
	// File is the configuration file that was read, if any.
	File string
}

// NewViper prepares a viper instance. cfgFile, when set, must exist;
// otherwise CLAUSE_CONFIG_FILE is tried and then .clause.yml in the working
// directory, both optional.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(clause.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := true
	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case os.Getenv(EnvConfigFile) != "":
		v.SetConfigFile(os.Getenv(EnvConfigFile))
	default:
		explicit = false
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".clause")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return v, nil
}

// Load resolves the configuration held by v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Engine:        clause.ConfigFromViper(v),
		StoreRoot:     DefaultStoreRoot,
		StoreOwner:    DefaultStoreOwner,
		WatchDebounce: DefaultWatchDebounce,
		File:          v.ConfigFileUsed(),
	}

	if root := v.GetString(KeyStoreRoot); root != "" {
		cfg.StoreRoot = root
	}
	if owner := v.GetString(KeyStoreOwner); owner != "" {
		cfg.StoreOwner = owner
	}
	if val := v.GetString(KeyWatchDebounce); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeyWatchDebounce, err)
		}
		cfg.WatchDebounce = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the engine settings and the CLI settings.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.WatchDebounce < 0 {
		return errors.New("invalid configuration: watch debounce cannot be negative")
	}
	return nil
}
