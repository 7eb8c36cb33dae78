/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix   string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	JWTSecret              string `mapstructure:"JWT_SECRET"`
	AdminRole              string `mapstructure:"ADMIN_ROLE"`
	PostRateLimitPerMinute int    `mapstructure:"POST_RATE_LIMIT_PER_MINUTE"`
	PostingMaxRetries      int    `mapstructure:"POSTING_MAX_RETRIES"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ADMIN_ROLE", "admin")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "ledger:rate_limit")
	viper.SetDefault("POST_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("POSTING_MAX_RETRIES", 3)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "LEDGER_SERVICE_JWT_SECRET")
	_ = viper.BindEnv("ADMIN_ROLE")
	_ = viper.BindEnv("POST_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("POSTING_MAX_RETRIES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.JWTSecret) == "" {
		config.JWTSecret = strings.TrimSpace(os.Getenv("LEDGER_SERVICE_JWT_SECRET"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "ledger:rate_limit"
	}
	config.AdminRole = strings.TrimSpace(config.AdminRole)
	if config.AdminRole == "" {
		config.AdminRole = "admin"
	}

	if config.PostRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative posting rate limit; disabling rate limiting\" value=%d", config.PostRateLimitPerMinute)
		config.PostRateLimitPerMinute = 0
	}
	if config.PostingMaxRetries <= 0 {
		config.PostingMaxRetries = 3
	}

	return
}
