package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/project-service/internal/auth"
)

// Cache backends accepted by AUTH_MEMBERSHIP_CACHE_BACKEND.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	DialTimeoutMs int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret                     string
	JWTIssuer                     string
	AccessTokenTTLMinutes         int
	PasswordAlgorithm             string
	PasswordIterations            int
	HashConcurrency               int
	MembershipCacheTTLSeconds     int
	MembershipCacheBackend        string
	MembershipCacheRedisKeyPrefix string
	BootstrapAdminEmail           string
	BootstrapAdminPassword        string
}

// Load reads configuration from environment variables, applying defaults where possible.
// The returned config is validated; an invalid auth setup is an error so the
// process refuses to start.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	iterations, err := getEnvAsStrictInt("AUTH_PASSWORD_ITERATIONS", 150_000)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getEnvAsStrictInt("AUTH_MEMBERSHIP_CACHE_TTL_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	tokenTTL, err := getEnvAsStrictInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	hashConcurrency, err := getEnvAsStrictInt("AUTH_HASH_CONCURRENCY", runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "project-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			DialTimeoutMs: getEnvAsInt("REDIS_DIAL_TIMEOUT_MS", 2000),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:                     os.Getenv("AUTH_JWT_SECRET"),
			JWTIssuer:                     getEnv("AUTH_JWT_ISSUER", "project-service"),
			AccessTokenTTLMinutes:         tokenTTL,
			PasswordAlgorithm:             getEnv("AUTH_PASSWORD_ALGORITHM", "pbkdf2-sha256"),
			PasswordIterations:            iterations,
			HashConcurrency:               hashConcurrency,
			MembershipCacheTTLSeconds:     cacheTTL,
			MembershipCacheBackend:        strings.ToLower(getEnv("AUTH_MEMBERSHIP_CACHE_BACKEND", CacheBackendMemory)),
			MembershipCacheRedisKeyPrefix: getEnv("AUTH_MEMBERSHIP_CACHE_PREFIX", "memberships:"),
			BootstrapAdminEmail:           os.Getenv("AUTH_BOOTSTRAP_ADMIN_EMAIL"),
			BootstrapAdminPassword:        os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	return c.Auth.Validate()
}

// Validate rejects unsafe or unusable authentication settings.
func (a AuthConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(a.JWTSecret) == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must not be empty"))
	}
	if a.AccessTokenTTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("AUTH_ACCESS_TOKEN_TTL_MINUTES must be positive, got %d", a.AccessTokenTTLMinutes))
	}
	if !auth.IsSupportedAlgorithm(a.PasswordAlgorithm) {
		errs = append(errs, fmt.Errorf("AUTH_PASSWORD_ALGORITHM %q is not supported", a.PasswordAlgorithm))
	}
	if a.PasswordIterations < auth.MinIterations {
		errs = append(errs, fmt.Errorf("AUTH_PASSWORD_ITERATIONS must be at least %d, got %d", auth.MinIterations, a.PasswordIterations))
	}
	if a.HashConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("AUTH_HASH_CONCURRENCY must be positive, got %d", a.HashConcurrency))
	}
	if a.MembershipCacheTTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("AUTH_MEMBERSHIP_CACHE_TTL_SECONDS must be positive, got %d", a.MembershipCacheTTLSeconds))
	}
	switch a.MembershipCacheBackend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		errs = append(errs, fmt.Errorf("AUTH_MEMBERSHIP_CACHE_BACKEND must be %q or %q, got %q", CacheBackendMemory, CacheBackendRedis, a.MembershipCacheBackend))
	}
	if (a.BootstrapAdminEmail == "") != (a.BootstrapAdminPassword == "") {
		errs = append(errs, errors.New("AUTH_BOOTSTRAP_ADMIN_EMAIL and AUTH_BOOTSTRAP_ADMIN_PASSWORD must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid auth config: %w", errors.Join(errs...))
	}
	return nil
}

// AccessTokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// MembershipCacheTTL returns how long a membership snapshot stays fresh.
func (a AuthConfig) MembershipCacheTTL() time.Duration {
	return time.Duration(a.MembershipCacheTTLSeconds) * time.Second
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// DialTimeout bounds connecting to Redis and the startup ping.
func (r RedisConfig) DialTimeout() time.Duration {
	if r.DialTimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(r.DialTimeoutMs) * time.Millisecond
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsStrictInt is getEnvAsInt for security-relevant values: a value that
// is set but unparsable is an error instead of a silent fallback.
func getEnvAsStrictInt(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(strings.ReplaceAll(val, "_", ""))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
