package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var configFile string

type Config struct {
	Environment string `mapstructure:"environment"`

	// HTTP Server
	HTTPServerAddress string        `mapstructure:"server.address" validate:"required"`
	HTTPServerTimeout time.Duration `mapstructure:"server.timeout"`
	CorsEnabled       bool          `mapstructure:"server.cors_enabled"`
	CorsOrigins       []string      `mapstructure:"server.cors_origins"`

	// Queue
	QueueEnabled   bool   `mapstructure:"queue.enabled"`
	QueueConnStr   string `mapstructure:"queue.conn_str" validate:"required_if=QueueEnabled true"`
	QueueName      string `mapstructure:"queue.name" validate:"required_if=QueueEnabled true"`
	QueueBatchSize int    `mapstructure:"queue.batch_size" validate:"gt=0"`

	// Ingestion
	IngestMaxBatchSize int    `mapstructure:"ingest.max_batch_size" validate:"gt=0"`
	DefaultEventSource string `mapstructure:"ingest.default_source" validate:"required"`

	// Privacy
	IPHashSalt       string `mapstructure:"privacy.ip_hash_salt"`
	CaptureUserAgent bool   `mapstructure:"privacy.capture_user_agent"`

	// Archive store
	ArchiveConnStr   string `mapstructure:"archive.conn_str"`
	ArchiveContainer string `mapstructure:"archive.container"`
	ArchivePrefix    string `mapstructure:"archive.prefix"`

	// Logging
	LogLevel  string `mapstructure:"logging.level"`
	LogFormat string `mapstructure:"logging.format"`
}

func SetConfigFile(file string) {
	configFile = file
}

func LoadConfig() (Config, error) {
	var config Config

	viper.SetConfigType("yaml")

	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.SetConfigName("config")
	}

	// Handle environment variables
	viper.SetEnvPrefix("TELEMETRY")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Try app.env file if yaml not found
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			viper.SetConfigType("env")
			viper.SetConfigName("app")
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return config, fmt.Errorf("error loading configuration: %w", err)
				}
				// Fall through to env vars and defaults only.
			}
		} else {
			return config, fmt.Errorf("error loading configuration: %w", err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("error unmarshaling configuration: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return config, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ArchiveConfigured reports whether the archive object store can be used.
// The worker treats a missing archive store as fatal; the API server never
// touches it.
func (c Config) ArchiveConfigured() bool {
	return c.ArchiveConnStr != "" && c.ArchiveContainer != ""
}

// Set default configuration values
func setDefaults() {
	viper.SetDefault("environment", "production")

	// HTTP Server
	viper.SetDefault("server.address", "0.0.0.0:8080")
	viper.SetDefault("server.timeout", "30s")
	viper.SetDefault("server.cors_enabled", true)
	viper.SetDefault("server.cors_origins", []string{"*"})

	// Queue
	viper.SetDefault("queue.enabled", false)
	viper.SetDefault("queue.name", "client-events")
	viper.SetDefault("queue.batch_size", 10)

	// Ingestion
	viper.SetDefault("ingest.max_batch_size", 25)
	viper.SetDefault("ingest.default_source", "portfolio-web")

	// Privacy
	viper.SetDefault("privacy.capture_user_agent", false)

	// Archive store
	viper.SetDefault("archive.container", "telemetry")
	viper.SetDefault("archive.prefix", "events/")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
