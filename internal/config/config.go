package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings for the settlement engine.
// Values are loaded from environment variables with sensible defaults,
// so the server runs without any configuration in development.
type Config struct {
	ServerPort          string        `mapstructure:"SERVER_PORT"`
	DatabasePath        string        `mapstructure:"DATABASE_PATH"`
	JWTSecret           string        `mapstructure:"JWT_SECRET"`
	TickInterval        time.Duration `mapstructure:"TICK_INTERVAL"`
	BatchSize           int           `mapstructure:"BATCH_SIZE"`
	QueueCapacity       int           `mapstructure:"QUEUE_CAPACITY"`
	DefaultMaxRetries   int           `mapstructure:"DEFAULT_MAX_RETRIES"`
	EscalationThreshold time.Duration `mapstructure:"ESCALATION_THRESHOLD"`
	GasFee              float64       `mapstructure:"GAS_FEE"`
}

// Load reads configuration from the environment, falling back to an
// optional .env file in the given path.
func Load(path string) (Config, error) {
	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("DATABASE_PATH", "settler.db")
	v.SetDefault("JWT_SECRET", "settler-secret-key")
	v.SetDefault("TICK_INTERVAL", "5s")
	v.SetDefault("BATCH_SIZE", 10)
	v.SetDefault("QUEUE_CAPACITY", 1000)
	v.SetDefault("DEFAULT_MAX_RETRIES", 3)
	v.SetDefault("ESCALATION_THRESHOLD", "72h")
	v.SetDefault("GAS_FEE", 0.0025)

	for _, key := range []string{
		"SERVER_PORT", "DATABASE_PATH", "JWT_SECRET", "TICK_INTERVAL",
		"BATCH_SIZE", "QUEUE_CAPACITY", "DEFAULT_MAX_RETRIES",
		"ESCALATION_THRESHOLD", "GAS_FEE",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if port := strings.TrimSpace(v.GetString("PORT")); port != "" {
		cfg.ServerPort = port
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1000
	}
	if cfg.DefaultMaxRetries < 0 {
		cfg.DefaultMaxRetries = 3
	}

	return cfg, nil
}
