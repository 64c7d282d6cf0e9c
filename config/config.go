// Package config loads server configuration from file, environment and
// defaults via viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the CRM API server.
type ServerConfig struct {
	HTTPPort    string   `mapstructure:"HTTP_PORT"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// JWTKeyID names the signing key, embedded in issued tokens as the kid
	// header so a later rotation can keep the old key verifiable.
	JWTSecretKey        string `mapstructure:"JWT_SECRET_KEY"`
	JWTKeyID            string `mapstructure:"JWT_KEY_ID"`
	JWTIssuer           string `mapstructure:"JWT_ISSUER"`
	AccessTokenTTLMin   int    `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	RefreshTokenTTLDays int    `mapstructure:"REFRESH_TOKEN_TTL_DAYS"`

	GoogleClientID string `mapstructure:"GOOGLE_CLIENT_ID"`

	ApifyToken string `mapstructure:"APIFY_TOKEN"`
	ApifyActor string `mapstructure:"APIFY_ACTOR"`

	LoginMaxAttempts int `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginWindowSec   int `mapstructure:"LOGIN_WINDOW_SEC"`
}

// LoadConfig reads configuration from an optional config.yaml, environment
// variables and defaults, in increasing order of precedence for env vars.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/crm-api/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8000")
	v.SetDefault("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001"})
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "crm_api")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("JWT_SECRET_KEY", "change-me-in-production")
	v.SetDefault("JWT_KEY_ID", "v1")
	v.SetDefault("JWT_ISSUER", "crm-api")
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 30)
	v.SetDefault("REFRESH_TOKEN_TTL_DAYS", 7)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("APIFY_TOKEN", "")
	v.SetDefault("APIFY_ACTOR", "compass~google-maps-reviews-scraper")
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 10)
	v.SetDefault("LOGIN_WINDOW_SEC", 300)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}
