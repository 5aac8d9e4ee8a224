package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the SMA services.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	JWTSecret        string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	DirectoryBaseURL   string
	DirectoryAPIKey    string
	DirectoryAPISecret string
	DirectoryTimeout   time.Duration

	SyncInterval time.Duration
	SyncLeaseTTL time.Duration

	AIProvider      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	AIDailyQuota    int

	NATSURL string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsDevelopment reports whether the service runs outside production.
func (c Config) IsDevelopment() bool {
	return c.AppEnv != "production"
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "SMA Core API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("jwt.access_ttl", "15m")
	v.SetDefault("jwt.refresh_ttl", "168h")
	v.SetDefault("directory.timeout", "10s")
	v.SetDefault("sync.interval", "15m")
	v.SetDefault("sync.lease_ttl", "10m")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.daily_quota", 50)
	v.SetDefault("cloudinary.folder", "sma/profile")

	accessTTL, err := time.ParseDuration(v.GetString("jwt.access_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid access token ttl: %w", err)
	}

	refreshTTL, err := time.ParseDuration(v.GetString("jwt.refresh_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid refresh token ttl: %w", err)
	}

	directoryTimeout, err := time.ParseDuration(v.GetString("directory.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid directory timeout: %w", err)
	}

	syncInterval, err := time.ParseDuration(v.GetString("sync.interval"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid sync interval: %w", err)
	}

	syncLease, err := time.ParseDuration(v.GetString("sync.lease_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid sync lease ttl: %w", err)
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		JWTSecret:        v.GetString("jwt.secret"),
		JWTRefreshSecret: v.GetString("jwt.refresh_secret"),
		AccessTokenTTL:   accessTTL,
		RefreshTokenTTL:  refreshTTL,

		DirectoryBaseURL:   v.GetString("directory.base_url"),
		DirectoryAPIKey:    v.GetString("directory.api_key"),
		DirectoryAPISecret: v.GetString("directory.api_secret"),
		DirectoryTimeout:   directoryTimeout,

		SyncInterval: syncInterval,
		SyncLeaseTTL: syncLease,

		AIProvider:      strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		AIDailyQuota:    v.GetInt("ai.daily_quota"),

		NATSURL: v.GetString("nats.url"),

		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("jwt secrets must be provided")
	}

	if cfg.AIDailyQuota <= 0 {
		cfg.AIDailyQuota = 50
	}

	return cfg, nil
}
