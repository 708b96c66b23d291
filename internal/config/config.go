package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	StoreDriver   string
	SQLitePath    string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	RedisURL     string
	PairCacheTTL time.Duration

	JWTSecret string

	CORSOrigins          []string
	Debug                bool
	LogLevel             string
	EmbeddedMessageLimit int
	RequestTimeout       time.Duration
	PresenceShards       int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dbHost := getEnv("POSTGRES_HOST", "localhost")
	dbPort := getEnv("POSTGRES_PORT", "5432")
	dbUser := getEnv("POSTGRES_USER", "postgres")
	dbPass := getEnv("POSTGRES_PASSWORD", "postgres")
	dbName := getEnv("POSTGRES_DB", "dmcore")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dbUser, dbPass),
		Host:     fmt.Sprintf("%s:%s", dbHost, dbPort),
		Path:     dbName,
		RawQuery: "sslmode=disable",
	}

	cfg := &Config{
		AppName: getEnv("APP_NAME", "dmcore API"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		SQLitePath:    getEnv("SQLITE_PATH", "dmcore.db"),
		DatabaseURL:   u.String(),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB", "dmcore"),

		RedisURL:     os.Getenv("REDIS_URL"),
		PairCacheTTL: time.Duration(getEnvAsInt("PAIR_CACHE_TTL_MINUTES", 24*60)) * time.Minute,

		JWTSecret: os.Getenv("JWT_SECRET"),

		Debug:                getEnvAsBool("DEBUG", false),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		EmbeddedMessageLimit: getEnvAsInt("EMBEDDED_MESSAGE_LIMIT", 0),
		RequestTimeout:       time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		PresenceShards:       getEnvAsInt("PRESENCE_SHARDS", 64),
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case DriverSQLite, DriverPostgres, DriverMongo:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of %q, %q, %q; got %q",
			DriverSQLite, DriverPostgres, DriverMongo, c.StoreDriver)
	}
	if c.EmbeddedMessageLimit < 0 {
		return fmt.Errorf("EMBEDDED_MESSAGE_LIMIT must not be negative")
	}
	if c.PresenceShards < 1 {
		return fmt.Errorf("PRESENCE_SHARDS must be at least 1")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
