// Package config loads chatpipe CLI configuration with viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/chatpipe/backend"
	"github.com/hupe1980/chatpipe/internal/telemetry"
	"github.com/hupe1980/chatpipe/pipeline"
)

// Config is the full CLI configuration.
type Config struct {
	Backend  BackendConfig    `mapstructure:"backend"`
	Pipeline pipeline.Config  `mapstructure:"pipeline"`
	Store    StoreConfig      `mapstructure:"store"`
	Chat     ChatConfig       `mapstructure:"chat"`
	Log      LogConfig        `mapstructure:"log"`
	Trace    telemetry.Config `mapstructure:"trace"`
}

// BackendConfig selects and configures the conversational backend.
type BackendConfig struct {
	Type      string        `mapstructure:"type"` // openai, anthropic, ollama or mock
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	URL       string        `mapstructure:"url"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 = off
	Burst     int           `mapstructure:"burst"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig enables the circuit breaker around the backend.
type BreakerConfig struct {
	Enabled               bool `mapstructure:"enabled"`
	backend.BreakerConfig `mapstructure:",squash"`
}

// StoreConfig points at the SQLite database. An empty path keeps sessions in memory.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ChatConfig overrides the stored chat settings when set.
type ChatConfig struct {
	Model        string   `mapstructure:"model"`
	Temperature  *float64 `mapstructure:"temperature"`
	SystemPrompt string   `mapstructure:"system_prompt"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend.type", "mock")
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.rate_limit", 0)
	v.SetDefault("backend.burst", 1)
	v.SetDefault("backend.breaker.enabled", true)
	v.SetDefault("backend.breaker.max_failures", 5)
	v.SetDefault("backend.breaker.timeout", 30*time.Second)
	v.SetDefault("pipeline.buffer_size", pipeline.DefaultConfig.EventBufferSize)
	v.SetDefault("pipeline.max_concurrent", 0)
	v.SetDefault("pipeline.timeout", 0)
	v.SetDefault("store.path", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.exporter", "stdout")
}

// Bind makes CHATPIPE_* environment variables override configuration keys,
// e.g. CHATPIPE_BACKEND_API_KEY for backend.api_key.
func Bind(v *viper.Viper) {
	v.SetEnvPrefix("CHATPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"backend.model", "backend.api_key", "chat.model", "chat.temperature", "chat.system_prompt"} {
		_ = v.BindEnv(key)
	}
}

// ReadFile reads configFile, or searches chatpipe.yaml in the working
// directory and $HOME/.config/chatpipe when configFile is empty. A missing
// default file is not an error.
func ReadFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("chatpipe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/chatpipe")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges and the backend type.
func (c Config) Validate() error {
	switch c.Backend.Type {
	case "openai", "anthropic", "ollama", "mock":
	default:
		return fmt.Errorf("invalid backend.type: %q", c.Backend.Type)
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("invalid backend.rate_limit: %v", c.Backend.RateLimit)
	}
	if c.Pipeline.EventBufferSize < 1 {
		return fmt.Errorf("invalid pipeline.buffer_size: %d", c.Pipeline.EventBufferSize)
	}
	if c.Pipeline.MaxConcurrentDispatches < 0 {
		return fmt.Errorf("invalid pipeline.max_concurrent: %d", c.Pipeline.MaxConcurrentDispatches)
	}
	if c.Pipeline.DispatchTimeout < 0 {
		return fmt.Errorf("invalid pipeline.timeout: %s", c.Pipeline.DispatchTimeout)
	}
	if t := c.Chat.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("invalid chat.temperature: %v (want 0..2)", *t)
	}
	return nil
}
