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

// Config holds all the configuration variables for the meal-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                    string `mapstructure:"SERVER_PORT"`
	DatabaseURL                   string `mapstructure:"DATABASE_URL"`
	RedisURL                      string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix          string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                   string `mapstructure:"RABBITMQ_URL"`
	JWTSecret                     string `mapstructure:"JWT_SECRET"`
	DailyRedemptionLimit          int    `mapstructure:"DAILY_REDEMPTION_LIMIT"`
	CodeRequestRateLimitPerMinute int    `mapstructure:"CODE_REQUEST_RATE_LIMIT_PER_MINUTE"`
	CodeGenerationMaxAttempts     int    `mapstructure:"CODE_GENERATION_MAX_ATTEMPTS"`
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
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "askida:rate_limit")
	viper.SetDefault("DAILY_REDEMPTION_LIMIT", 2)
	viper.SetDefault("CODE_REQUEST_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("CODE_GENERATION_MAX_ATTEMPTS", 5)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("DAILY_REDEMPTION_LIMIT")
	_ = viper.BindEnv("CODE_REQUEST_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CODE_GENERATION_MAX_ATTEMPTS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
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
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "askida:rate_limit"
	}

	if config.DailyRedemptionLimit < 1 {
		log.Printf("level=warn component=config msg=\"non-positive daily redemption limit; using default\" limit=%d", config.DailyRedemptionLimit)
		config.DailyRedemptionLimit = 2
	}
	if config.CodeRequestRateLimitPerMinute < 0 {
		config.CodeRequestRateLimitPerMinute = 0
	}
	if config.CodeGenerationMaxAttempts < 1 {
		config.CodeGenerationMaxAttempts = 5
	}

	return
}
