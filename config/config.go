package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every process-level setting. It is built once in main and
// passed by handle; nothing reads the environment after Load returns.
type Config struct {
	ServerPort string
	BaseURL    string
	JWTSecret  string
	Postgres   PostgresConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	OpenAI     OpenAIConfig
	Logging    LoggingConfig
	Static     Settings
}

type PostgresConfig struct {
	DSN               string
	Host              string
	Port              int
	User              string
	Password          string
	Database          string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OpenAIConfig points the response generation service at an OpenAI-compatible
// chat-completions endpoint. APIKey is enforced by the service constructor,
// not here, so tooling that never talks to the provider can still load config.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{
		ServerPort: getEnv("PORT", "8080"),
		BaseURL:    strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
		JWTSecret:  getEnv("JWT_SECRET", "dev-secret"),
		Postgres: PostgresConfig{
			DSN:               strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
			Host:              getEnv("POSTGRES_HOST", "localhost"),
			Port:              parsePositiveInt(os.Getenv("POSTGRES_PORT"), 5432),
			User:              getEnv("POSTGRES_USER", "postgres"),
			Password:          getEnv("POSTGRES_PASSWORD", "postgres"),
			Database:          getEnv("POSTGRES_DB", "voiceline"),
			MaxConns:          int32(parsePositiveInt(os.Getenv("POSTGRES_MAX_CONNS"), 8)),
			MinConns:          int32(parsePositiveInt(os.Getenv("POSTGRES_MIN_CONNS"), 1)),
			MaxConnLifetime:   parseDuration(os.Getenv("POSTGRES_MAX_CONN_LIFETIME"), time.Hour),
			MaxConnIdleTime:   parseDuration(os.Getenv("POSTGRES_MAX_CONN_IDLE"), 30*time.Minute),
			HealthCheckPeriod: parseDuration(os.Getenv("POSTGRES_HEALTH_CHECK_PERIOD"), time.Minute),
			ConnectTimeout:    parseDuration(os.Getenv("POSTGRES_CONNECT_TIMEOUT"), 5*time.Second),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGO_DATABASE", "voiceline"),
			ConnectTimeout: parseDuration(os.Getenv("MONGO_CONNECT_TIMEOUT"), 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
			DB:       parseNonNegativeInt(os.Getenv("REDIS_DB"), 0),
		},
		OpenAI: OpenAIConfig{
			BaseURL: strings.TrimRight(getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"), "/"),
			APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Logging: LoggingConfig{
			Level:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Encoding:     strings.ToLower(getEnv("LOG_ENCODING", "console")),
			Development:  parseBool(os.Getenv("LOG_DEVELOPMENT"), false),
			EnableCaller: parseBool(os.Getenv("LOG_CALLER"), false),
			ServiceName:  getEnv("SERVICE_NAME", "voiceline-api"),
		},
		Static: loadSettings(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEnvFiles() error {
	if err := godotenv.Load("config/.env"); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			// ignore missing config/.env so that environment variables can be supplied externally
			return nil
		}

		return err
	}

	return nil
}

func (c *Config) validate() error {
	problems := make([]string, 0, 3)

	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		problems = append(problems, fmt.Sprintf("PORT %q is not a number", c.ServerPort))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	switch c.Logging.Encoding {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("LOG_ENCODING %q is not one of console, json", c.Logging.Encoding))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}

// BuildDSN prefers an explicit POSTGRES_DSN and otherwise assembles one from
// the individual connection fields.
func (c PostgresConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	return strings.TrimSpace(fallback)
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}

	return value
}

func parseNonNegativeInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return fallback
	}

	return value
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}

	return value
}

func parseBool(raw string, fallback bool) bool {
	if raw == "" {
		return fallback
	}

	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}

	return value
}
