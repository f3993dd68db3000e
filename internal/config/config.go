package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends for uploaded deliverables.
const (
	StorageLocal      = "local"
	StorageCloudinary = "cloudinary"
)

// Config holds runtime configuration values for the service.
type Config struct {
	AppName  string
	AppEnv   string
	AppPort  string
	LogLevel string

	DatabaseURL   string
	RedisURL      string
	NATSURL       string
	EventsChannel string
	JWTSecret     string

	ProjectAPIBaseURL string
	ProjectAPIKey     string
	ProjectAPITimeout time.Duration
	ProjectAPIDryRun  bool

	WorkgroupCacheTTL time.Duration
	OutsiderRoles     []string

	StorageBackend         string
	StorageLocalDir        string
	StoragePublicURL       string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	UploadMaxBytes  int64
	UploadRateLimit int

	CORSAllowOrigins string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GROUPWORK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("app.name", "Group Project API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.url", "sqlite:groupwork.db")
	v.SetDefault("events.channel", "groupwork:events")
	v.SetDefault("project_api.timeout", "20s")
	v.SetDefault("workgroup.cache_ttl", "5s")
	v.SetDefault("outsider.roles", "assistant")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.local_dir", "uploads")
	v.SetDefault("storage.public_url", "http://localhost:8080/uploads")
	v.SetDefault("cloudinary.folder", "groupwork")
	v.SetDefault("upload.max_size_mb", 25)
	v.SetDefault("upload.rate_limit", 10)
	v.SetDefault("cors.allow_origins", "*")

	apiTimeout, err := time.ParseDuration(v.GetString("project_api.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid project api timeout: %w", err)
	}
	workgroupTTL, err := time.ParseDuration(v.GetString("workgroup.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid workgroup cache ttl: %w", err)
	}

	maxSizeMB := v.GetInt64("upload.max_size_mb")
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventsChannel:          v.GetString("events.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		ProjectAPIBaseURL:      strings.TrimRight(v.GetString("project_api.base_url"), "/"),
		ProjectAPIKey:          v.GetString("project_api.key"),
		ProjectAPITimeout:      apiTimeout,
		ProjectAPIDryRun:       v.GetBool("project_api.dry_run"),
		WorkgroupCacheTTL:      workgroupTTL,
		OutsiderRoles:          splitList(v.GetString("outsider.roles")),
		StorageBackend:         strings.ToLower(v.GetString("storage.backend")),
		StorageLocalDir:        v.GetString("storage.local_dir"),
		StoragePublicURL:       v.GetString("storage.public_url"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		UploadMaxBytes:         maxSizeMB << 20,
		UploadRateLimit:        v.GetInt("upload.rate_limit"),
		CORSAllowOrigins:       v.GetString("cors.allow_origins"),
	}

	if !cfg.ProjectAPIDryRun {
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("jwt secret must be provided")
		}
		if cfg.ProjectAPIBaseURL == "" {
			return Config{}, fmt.Errorf("project api base url must be provided")
		}
	}

	switch cfg.StorageBackend {
	case StorageLocal, StorageCloudinary:
	default:
		return Config{}, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if cfg.UploadRateLimit <= 0 {
		cfg.UploadRateLimit = 10
	}

	return cfg, nil
}

func splitList(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
