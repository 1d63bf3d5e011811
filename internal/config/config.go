package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"

	TaskAccessScoped     = "scoped"
	TaskAccessPrivileged = "privileged"
)

type Config struct {
	// Server
	Port           int
	Host           string
	AllowedOrigins []string
	CookieSecure   bool
	TrustProxy     bool // honour X-Forwarded-For when keying rate limits

	// Data platform
	SupabaseURL     string
	AnonKey         string
	ServiceRoleKey  string // never sent to the browser
	JWTSecret       string
	PlatformTimeout int // seconds
	DataBackend     string
	TaskAccess      string
	DatabaseURL     string

	// Logging / metrics
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool

	// Rate limiting
	AuthRateLimit int // requests per second per IP
	APIRateLimit  int
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Export
	ExportS3Endpoint  string
	ExportS3Region    string
	ExportS3Bucket    string
	ExportS3AccessKey string
	ExportS3SecretKey string
	ExportS3Prefix    string
	ExportInterval    int // minutes between scheduled exports, 0 disables
}

// Load reads the process environment (and .env, when present) into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvInt("PORT", 3000),
		Host:              getEnv("HOST", "0.0.0.0"),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "")),
		CookieSecure:      getEnvBool("COOKIE_SECURE", false),
		TrustProxy:        getEnvBool("TRUST_PROXY", false),
		SupabaseURL:       strings.TrimRight(firstEnv("SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL"), "/"),
		AnonKey:           firstEnv("SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY"),
		ServiceRoleKey:    getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		JWTSecret:         getEnv("SUPABASE_JWT_SECRET", ""),
		PlatformTimeout:   getEnvInt("PLATFORM_TIMEOUT_SECONDS", 10),
		DataBackend:       strings.ToLower(getEnv("DATA_BACKEND", BackendREST)),
		TaskAccess:        strings.ToLower(getEnv("TASK_ACCESS", TaskAccessScoped)),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
		AuthRateLimit:     getEnvInt("AUTH_RATE_LIMIT", 5),
		APIRateLimit:      getEnvInt("API_RATE_LIMIT", 30),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		ExportS3Endpoint:  getEnv("EXPORT_S3_ENDPOINT", ""),
		ExportS3Region:    getEnv("EXPORT_S3_REGION", "us-east-1"),
		ExportS3Bucket:    getEnv("EXPORT_S3_BUCKET", ""),
		ExportS3AccessKey: getEnv("EXPORT_S3_ACCESS_KEY", ""),
		ExportS3SecretKey: getEnv("EXPORT_S3_SECRET_KEY", ""),
		ExportS3Prefix:    getEnv("EXPORT_S3_PREFIX", "dupaboard"),
		ExportInterval:    getEnvInt("EXPORT_INTERVAL_MINUTES", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every entry point depends on.
func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL must be set")
	}
	if c.AnonKey == "" {
		return fmt.Errorf("SUPABASE_ANON_KEY must be set")
	}
	if c.ServiceRoleKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY must be set")
	}

	switch c.DataBackend {
	case BackendREST:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATA_BACKEND=postgres")
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("SUPABASE_JWT_SECRET must be at least 32 characters when DATA_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("DATA_BACKEND must be %q or %q, got %q", BackendREST, BackendPostgres, c.DataBackend)
	}

	if c.TaskAccess != TaskAccessScoped && c.TaskAccess != TaskAccessPrivileged {
		return fmt.Errorf("TASK_ACCESS must be %q or %q, got %q", TaskAccessScoped, TaskAccessPrivileged, c.TaskAccess)
	}
	if c.ExportInterval < 0 {
		return fmt.Errorf("EXPORT_INTERVAL_MINUTES cannot be negative")
	}
	if c.PlatformTimeout <= 0 {
		return fmt.Errorf("PLATFORM_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

// ExportConfigured reports whether the S3 snapshot target is complete.
func (c *Config) ExportConfigured() bool {
	return c.ExportS3Bucket != "" && c.ExportS3AccessKey != "" && c.ExportS3SecretKey != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func mustGetEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return v
}

// MustGetEnv is used by the one-shot scripts that need a single extra variable.
func MustGetEnv(key string) string {
	return mustGetEnv(key)
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
