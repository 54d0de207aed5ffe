package clause

import (
	"errors"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable the engine reads.
const EnvPrefix = "CLAUSE"

// Config contains all configuration options for the clause engine
type Config struct {
	// CacheMaxSize is the maximum number of templates to cache. 0 disables caching.
	CacheMaxSize int
	// CacheTTL is the time-to-live for cached templates. 0 means no expiration.
	CacheTTL time.Duration
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string
	// StrictMode rejects render contexts carrying keys the template never declares
	StrictMode bool
	// RenderConcurrency bounds parallel renders in RenderBatch
	RenderConcurrency int
	// MaxTemplateSize rejects template texts larger than this many bytes. 0 means no limit.
	MaxTemplateSize int
}

// Viper keys; with EnvPrefix and the "." -> "_" replacer they map to
// CLAUSE_CACHE_MAX_SIZE, CLAUSE_CACHE_TTL, and so on.
const (
	KeyCacheMaxSize      = "cache.max_size"
	KeyCacheTTL          = "cache.ttl"
	KeyLogLevel          = "log.level"
	KeyStrictMode        = "render.strict"
	KeyRenderConcurrency = "render.concurrency"
	KeyMaxTemplateSize   = "template.max_size"
)

// globalConfig is initialized in its declaration so that package-level
// values built from it (defaultCache, DefaultEngine) see CLAUSE_* settings.
var (
	globalConfig      = ConfigFromEnvironment()
	globalConfigMutex sync.RWMutex
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		CacheMaxSize:      100,
		CacheTTL:          0,
		LogLevel:          "info",
		StrictMode:        false,
		RenderConcurrency: runtime.GOMAXPROCS(0),
		MaxTemplateSize:   8 << 20,
	}
}

// NewEnvViper returns a viper instance bound to CLAUSE_* environment variables.
func NewEnvViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ConfigFromEnvironment creates a configuration from environment variables
func ConfigFromEnvironment() *Config {
	return ConfigFromViper(NewEnvViper())
}

// ConfigFromViper overlays values found in v onto the defaults. Values that
// fail to parse are ignored and the default is kept.
func ConfigFromViper(v *viper.Viper) *Config {
	config := DefaultConfig()

	if val := v.GetString(KeyCacheMaxSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			config.CacheMaxSize = size
		}
	}

	if val := v.GetString(KeyCacheTTL); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.CacheTTL = duration
		}
	}

	if val := v.GetString(KeyLogLevel); val != "" {
		config.LogLevel = strings.ToLower(val)
	}

	if val := v.GetString(KeyStrictMode); val != "" {
		config.StrictMode = parseBool(val)
	}

	if val := v.GetString(KeyRenderConcurrency); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.RenderConcurrency = n
		}
	}

	if val := v.GetString(KeyMaxTemplateSize); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.MaxTemplateSize = n
		}
	}

	return config
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()

	if overrides == nil {
		return defaults
	}

	config := *overrides

	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}

	if config.RenderConcurrency == 0 {
		config.RenderConcurrency = defaults.RenderConcurrency
	}

	return &config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.CacheMaxSize < 0 {
		return errors.New("cache max size cannot be negative")
	}

	if c.CacheTTL < 0 {
		return errors.New("cache TTL cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}

	if !validLogLevels[c.LogLevel] {
		return errors.New("invalid log level: " + c.LogLevel)
	}

	if c.RenderConcurrency <= 0 {
		return errors.New("render concurrency must be positive")
	}

	if c.MaxTemplateSize < 0 {
		return errors.New("max template size cannot be negative")
	}

	return nil
}

// GetGlobalConfig returns the global configuration
func GetGlobalConfig() *Config {
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}

	configCopy := *globalConfig
	return &configCopy
}

// SetGlobalConfig sets the global configuration. Engines created with New,
// DefaultEngine among them, and the shared template cache follow it.
func SetGlobalConfig(config *Config) {
	globalConfigMutex.Lock()
	if config != nil {
		configCopy := *config
		config = &configCopy
	}
	globalConfig = config
	globalConfigMutex.Unlock()

	// Outside the lock: the logger and the cache read the config back.
	UpdateLoggerFromConfig()
	current := GetGlobalConfig()
	defaultCache.configure(CacheConfig{MaxSize: current.CacheMaxSize, TTL: current.CacheTTL})
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
