package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Message store backends.
const (
	MessageStoreDefault = "default"
	MessageStoreMongo   = "mongo"
)

// Session store backends.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

type Config struct {
	Environment string // ENV: production, development, etc.
	Port        string
	Host        string // Raw HOST env (e.g. https://api.physiq.app)
	AllowedHost string // Hostname only for strict host check (production only)
	TrustProxy  bool   // take client IPs from X-Forwarded-For

	StoreDriver  string
	PostgresURI  string
	SQLitePath   string
	MessageStore string
	MongoURI     string
	SessionStore string
	RedisURI     string

	SessionSecret  string
	FrontendURL    string
	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL(s)

	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	MessagingEnforceBlocks bool
	CelebrationDuration    time.Duration
	SeedOnStart            bool
}

const defaultSessionSecret = "physiq-dev-secret-change-in-production"

// Load reads the configuration from the environment. Malformed values are
// reported rather than silently replaced.
func Load() (*Config, error) {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))
	host := getEnv("HOST", "http://localhost:8080")

	// AllowedHost is only set in production; host check is skipped in development
	var allowedHost string
	if env == "production" {
		allowedHost = hostname(host)
	}

	allowedOrigins := parseOrigins(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		for _, u := range []string{getEnv("FRONTEND_URL", "http://localhost:3000"), getEnv("FRONTEND_URL_2", "")} {
			u = strings.TrimSpace(u)
			if u != "" {
				allowedOrigins = append(allowedOrigins, u)
			}
		}
	}

	enforceBlocks, err := getBool("MESSAGING_ENFORCE_BLOCKS", true)
	if err != nil {
		return nil, err
	}
	seedOnStart, err := getBool("SEED_ON_START", false)
	if err != nil {
		return nil, err
	}
	trustProxy, err := getBool("TRUST_PROXY", false)
	if err != nil {
		return nil, err
	}
	celebration, err := getDuration("CELEBRATION_DURATION", 3000*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment: env,
		Port:        getEnv("PORT", "8080"),
		Host:        host,
		AllowedHost: allowedHost,
		TrustProxy:  trustProxy,

		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		PostgresURI:  getEnv("POSTGRES_URI", "postgres://localhost:5432/physiq?sslmode=disable"),
		SQLitePath:   getEnv("SQLITE_PATH", "physiq.db"),
		MessageStore: strings.ToLower(getEnv("MESSAGE_STORE", MessageStoreDefault)),
		MongoURI:     getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017/physiq")),
		SessionStore: strings.ToLower(getEnv("SESSION_STORE", SessionStoreMemory)),
		RedisURI:     getEnv("REDIS_URI", "redis://localhost:6379/0"),

		SessionSecret:  getEnv("SESSION_SECRET", defaultSessionSecret),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),
		AllowedOrigins: allowedOrigins,

		CloudinaryName:      getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),

		MessagingEnforceBlocks: enforceBlocks,
		CelebrationDuration:    celebration,
		SeedOnStart:            seedOnStart,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMemory, StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("STORE_DRIVER: unknown driver %q", c.StoreDriver)
	}
	switch c.MessageStore {
	case MessageStoreDefault, MessageStoreMongo:
	default:
		return fmt.Errorf("MESSAGE_STORE: unknown backend %q", c.MessageStore)
	}
	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreRedis:
	default:
		return fmt.Errorf("SESSION_STORE: unknown backend %q", c.SessionStore)
	}
	if c.IsProduction() && c.SessionSecret == defaultSessionSecret {
		return fmt.Errorf("SESSION_SECRET must be set in production")
	}
	return nil
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

// CloudinaryEnabled reports whether upload credentials are configured.
func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// hostname strips scheme, path and port from a URL-ish host value.
func hostname(host string) string {
	for _, prefix := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return strings.TrimSpace(host)
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// getDuration accepts Go durations ("3s") or a bare number of milliseconds.
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("%s: must not be negative", key)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}
