package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm"`
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Identity     IdentityConfig     `mapstructure:"identity"`
	Log          LogConfig          `mapstructure:"log"`
}

// LLMConfig holds the completion endpoint configuration
type LLMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SystemPrompt string        `mapstructure:"system_prompt"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres or memory
	DSN    string `mapstructure:"dsn"`
}

// ConversationConfig tunes the turn
type ConversationConfig struct {
	HistoryWindow int `mapstructure:"history_window"`
}

// IdentityConfig decides how sessions are scoped
type IdentityConfig struct {
	Mode string `mapstructure:"mode"`
}

// LogConfig holds the log level
type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	IdentityShared  = "shared"
	IdentityPerUser = "per_user"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://api.euron.one/api/v1/euri")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4.1-nano")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("storage.driver", StorageSQLite)
	v.SetDefault("storage.dsn", "counselor.db")
	v.SetDefault("conversation.history_window", 10)
	v.SetDefault("identity.mode", IdentityShared)
	v.SetDefault("log.level", "info")
}

// Load loads the configuration from config.yaml (or the file named by
// CONFIG_PATH). A missing file is not an error; defaults and COUNSELOR_*
// environment variables still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("COUNSELOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the application cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageSQLite, StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	switch c.Identity.Mode {
	case IdentityShared, IdentityPerUser:
	default:
		return fmt.Errorf("unsupported identity mode %q", c.Identity.Mode)
	}
	if c.Conversation.HistoryWindow < 1 {
		return fmt.Errorf("conversation.history_window must be positive, got %d", c.Conversation.HistoryWindow)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	return nil
}
