package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

type Config struct {
	ServerPort string
	Env        string
	LogLevel   string

	// Storage
	StoreBackend string
	DataDir      string
	SQLitePath   string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	RedisURL     string

	// Sessions
	AllowedOrigins  []string
	CloseSuperseded bool
	SendBuffer      int
	MaxMessageBytes int64

	OTLPEndpoint string
}

// Load reads configuration from the environment, after loading a local .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
		DataDir:         getEnv("DATA_DIR", "data"),
		SQLitePath:      getEnv("SQLITE_PATH", "data/cypherchat.db"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "cypherchat"),
		DBPassword:      getEnv("DB_PASSWORD", "cypherchat_dev_password"),
		DBName:          getEnv("DB_NAME", "cypherchat"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AllowedOrigins:  parseList(getEnv("ALLOWED_ORIGINS", "*")),
		CloseSuperseded: getEnv("CLOSE_SUPERSEDED", "true") == "true",
		SendBuffer:      getInt("SEND_BUFFER", 256),
		MaxMessageBytes: int64(getInt("MAX_MESSAGE_BYTES", 64*1024)),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendFile, BackendPostgres, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// PostgresDSN assembles the connection string from the DB_* settings.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// AllowAllOrigins reports whether the origin list contains the "*" wildcard.
func (c *Config) AllowAllOrigins() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// OriginHosts returns AllowedOrigins without their scheme, the form the
// WebSocket origin check matches against.
func (c *Config) OriginHosts() []string {
	hosts := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		hosts = append(hosts, strings.TrimSuffix(o, "/"))
	}
	return hosts
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return fallback
}

func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
