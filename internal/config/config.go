package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/support-mailer/")
	v.AddConfigPath("$HOME/.support-mailer")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("SUPPORT_MAILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.listen_address", "0.0.0.0:8080")

	// Mail account defaults
	v.SetDefault("mail.email", "")
	v.SetDefault("mail.imap_host", "")
	v.SetDefault("mail.imap_port", 993)
	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 465)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.use_ssl", true)
	v.SetDefault("mail.insecure_skip_verify", false)

	// Poller defaults
	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval", "5m")

	// Store defaults
	v.SetDefault("store.type", "sqlite3")
	v.SetDefault("store.sqlite_path", "/data/support_mailer.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/support_mailer?parseTime=true")

	// LLM defaults
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model_name", "deepseek-chat")

	// Translation defaults
	v.SetDefault("translate.enabled", false)
	v.SetDefault("translate.app_id", "")
	v.SetDefault("translate.secret", "")
	v.SetDefault("translate.endpoint", "")
	v.SetDefault("translate.target_lang", "zh")

	// Language detection defaults
	v.SetDefault("langdetect.min_confidence", 0.2)

	// Company defaults exposed to reply templates
	v.SetDefault("company.name", "Our Company")
	v.SetDefault("company.email", "support@example.com")
	v.SetDefault("company.phone", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
