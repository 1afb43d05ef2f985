package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Catalog API
	APIBaseURL        string
	APILoginEndpoint  string
	APIListEndpoint   string
	APIDetailEndpoint string
	APIUsername       string
	APIPassword       string
	APIDomain         string
	APIPageSize       int

	// Database
	DBDriver string // "mysql" or "sqlite"
	DBDSN    string

	// Object storage
	StorageBackend   string // "oss" or "s3"
	StoragePrefix    string
	EncryptionSecret string

	OSSEndpoint     string
	OSSRegion       string
	OSSBucket       string
	OSSAccessKeyID  string
	OSSAccessSecret string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	// Downstream sites
	SiteDomains       []string
	SiteAPIToken      string
	SiteSyncEndpoint  string
	SiteCleanEndpoint string

	// Pacing
	ItemDelay time.Duration
	PageDelay time.Duration

	// Paths
	CheckpointFile string // $CONFIG_DIR/checkpoint.json

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("API_LOGIN_ENDPOINT", "/api/login")
	viper.SetDefault("API_LIST_ENDPOINT", "/api/video/list")
	viper.SetDefault("API_DETAIL_ENDPOINT", "/api/video/detail")
	viper.SetDefault("API_PAGE_SIZE", 20)
	viper.SetDefault("DB_DRIVER", "mysql")
	viper.SetDefault("STORAGE_BACKEND", "oss")
	viper.SetDefault("STORAGE_PREFIX", "video_data")
	viper.SetDefault("S3_USE_SSL", true)
	viper.SetDefault("SITE_SYNC_ENDPOINT", "/api/sync")
	viper.SetDefault("SITE_CLEAN_ENDPOINT", "/api/clean")
	viper.SetDefault("ITEM_DELAY_MS", 500)
	viper.SetDefault("PAGE_DELAY_MS", 1000)
	viper.SetDefault("LOG_LEVEL", "info")

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "vodsync")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		// Catalog API
		APIBaseURL:        viper.GetString("API_BASE_URL"),
		APILoginEndpoint:  viper.GetString("API_LOGIN_ENDPOINT"),
		APIListEndpoint:   viper.GetString("API_LIST_ENDPOINT"),
		APIDetailEndpoint: viper.GetString("API_DETAIL_ENDPOINT"),
		APIUsername:       viper.GetString("API_USERNAME"),
		APIPassword:       viper.GetString("API_PASSWORD"),
		APIDomain:         viper.GetString("API_DOMAIN"),
		APIPageSize:       viper.GetInt("API_PAGE_SIZE"),

		// Database
		DBDriver: viper.GetString("DB_DRIVER"),
		DBDSN:    viper.GetString("DB_DSN"),

		// Object storage
		StorageBackend:   viper.GetString("STORAGE_BACKEND"),
		StoragePrefix:    viper.GetString("STORAGE_PREFIX"),
		EncryptionSecret: viper.GetString("STORAGE_ENCRYPTION_KEY"),

		OSSEndpoint:     viper.GetString("OSS_ENDPOINT"),
		OSSRegion:       viper.GetString("OSS_REGION"),
		OSSBucket:       viper.GetString("OSS_BUCKET"),
		OSSAccessKeyID:  viper.GetString("OSS_ACCESS_KEY_ID"),
		OSSAccessSecret: viper.GetString("OSS_ACCESS_KEY_SECRET"),

		S3Endpoint:  viper.GetString("S3_ENDPOINT"),
		S3Region:    viper.GetString("S3_REGION"),
		S3Bucket:    viper.GetString("S3_BUCKET"),
		S3AccessKey: viper.GetString("S3_ACCESS_KEY"),
		S3SecretKey: viper.GetString("S3_SECRET_KEY"),
		S3UseSSL:    viper.GetBool("S3_USE_SSL"),

		// Downstream sites
		SiteDomains:       splitDomains(viper.GetString("SITE_DOMAINS")),
		SiteAPIToken:      viper.GetString("SITE_API_TOKEN"),
		SiteSyncEndpoint:  viper.GetString("SITE_SYNC_ENDPOINT"),
		SiteCleanEndpoint: viper.GetString("SITE_CLEAN_ENDPOINT"),

		// Pacing
		ItemDelay: time.Duration(viper.GetInt("ITEM_DELAY_MS")) * time.Millisecond,
		PageDelay: time.Duration(viper.GetInt("PAGE_DELAY_MS")) * time.Millisecond,

		// Paths
		CheckpointFile: filepath.Join(configDir, "checkpoint.json"),

		// Logging
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	// Validate required fields
	if config.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}
	if config.APIUsername == "" {
		return nil, fmt.Errorf("API_USERNAME is required")
	}
	if config.APIPassword == "" {
		return nil, fmt.Errorf("API_PASSWORD is required")
	}
	if config.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required")
	}
	if config.EncryptionSecret == "" {
		return nil, fmt.Errorf("STORAGE_ENCRYPTION_KEY is required")
	}
	if config.DBDriver != "mysql" && config.DBDriver != "sqlite" {
		return nil, fmt.Errorf("DB_DRIVER must be mysql or sqlite, got %q", config.DBDriver)
	}
	if config.StorageBackend != "oss" && config.StorageBackend != "s3" {
		return nil, fmt.Errorf("STORAGE_BACKEND must be oss or s3, got %q", config.StorageBackend)
	}

	return config, nil
}

// splitDomains parses a comma-separated domain list, dropping empty entries.
func splitDomains(raw string) []string {
	var domains []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			domains = append(domains, trimmed)
		}
	}
	return domains
}
