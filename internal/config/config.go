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

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTesting     Environment = "testing"
)

func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvProduction, EnvTesting:
		return true
	}
	return false
}

type SessionBackend string

const (
	SessionBackendMemory SessionBackend = "memory"
	SessionBackendSQL    SessionBackend = "sql"
	SessionBackendRedis  SessionBackend = "redis"
)

func (b SessionBackend) IsValid() bool {
	switch b {
	case SessionBackendMemory, SessionBackendSQL, SessionBackendRedis:
		return true
	}
	return false
}

type Config struct {
	Server    Server
	API       API
	Session   Session
	Database  Database
	Security  Security
	RateLimit RateLimit
	Cache     Cache
	Turnstile Turnstile
	LogLevel  string
	Location  *time.Location
}

type Server struct {
	Port           int
	Environment    Environment
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

// API describes the remote polls API this frontend talks to.
type API struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures int
	BreakerReset    time.Duration
	CookieName      string
}

type Session struct {
	Backend       SessionBackend
	TTL           time.Duration
	HydrationWait time.Duration
}

type Database struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type Security struct {
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	ContentSecurityPolicy string
	ReferrerPolicy        string
	PermissionsPolicy     string
}

type RateLimit struct {
	Enabled        bool
	AuthRequests   int
	VoteRequests   int
	WindowDuration time.Duration
}

type Cache struct {
	Enabled         bool
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPoolSize   int
	QueryTTL        time.Duration
	PollTTL         time.Duration
	InMemoryMaxSize int
}

type Turnstile struct {
	SiteKey string
}

// Load reads an optional .env file (ENV_FILE, default ".env") and then the
// process environment.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("env file %s: %w", envFile, err)
	}

	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (Config, error) {
	var config Config
	var err error

	// Server configuration
	config.Server.Port, err = getEnvIntSafe("SERVER_PORT", 8080, false)
	if err != nil {
		return config, fmt.Errorf("server port config error: %w", err)
	}

	config.Server.Environment, err = getEnvEnvironmentSafe("SERVER_ENVIRONMENT", EnvDevelopment, false)
	if err != nil {
		return config, fmt.Errorf("server environment config error: %w", err)
	}

	config.Server.WriteTimeout, err = getEnvDurationSafe("SERVER_WRITE_TIMEOUT", 15*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server write timeout config error: %w", err)
	}

	config.Server.ReadTimeout, err = getEnvDurationSafe("SERVER_READ_TIMEOUT", 15*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server read timeout config error: %w", err)
	}

	config.Server.IdleTimeout, err = getEnvDurationSafe("SERVER_IDLE_TIMEOUT", 60*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("server idle timeout config error: %w", err)
	}

	config.Server.MaxHeaderBytes, err = getEnvIntSafe("SERVER_MAX_HEADER_BYTES", 1<<20, false)
	if err != nil {
		return config, fmt.Errorf("server max header bytes config error: %w", err)
	}

	// Remote API configuration
	config.API.BaseURL, err = getEnvStringSafe("API_BASE_URL", "", true)
	if err != nil {
		return config, fmt.Errorf("API base URL config error: %w", err)
	}
	config.API.BaseURL = strings.TrimRight(config.API.BaseURL, "/")

	config.API.Timeout, err = getEnvDurationSafe("API_TIMEOUT", 10*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("API timeout config error: %w", err)
	}

	config.API.BreakerFailures, err = getEnvIntSafe("API_BREAKER_MAX_FAILURES", 5, false)
	if err != nil {
		return config, fmt.Errorf("API breaker failures config error: %w", err)
	}

	config.API.BreakerReset, err = getEnvDurationSafe("API_BREAKER_RESET_TIMEOUT", 30*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("API breaker reset config error: %w", err)
	}

	config.API.CookieName, err = getEnvStringSafe("API_COOKIE_NAME", "token", false)
	if err != nil {
		return config, fmt.Errorf("API cookie name config error: %w", err)
	}

	// Session configuration
	backend, err := getEnvStringSafe("SESSION_BACKEND", string(SessionBackendMemory), false)
	if err != nil {
		return config, fmt.Errorf("session backend config error: %w", err)
	}
	config.Session.Backend = SessionBackend(backend)
	if !config.Session.Backend.IsValid() {
		return config, fmt.Errorf("session backend config error: invalid value %q", backend)
	}

	config.Session.TTL, err = getEnvDurationSafe("SESSION_TTL", 8*time.Hour, false)
	if err != nil {
		return config, fmt.Errorf("session TTL config error: %w", err)
	}

	config.Session.HydrationWait, err = getEnvDurationSafe("SESSION_HYDRATION_WAIT", 2*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("session hydration wait config error: %w", err)
	}

	// Database configuration, only required for the sql session backend
	config.Database.Driver, err = getEnvStringSafe("DB_DRIVER", "pgx", false)
	if err != nil {
		return config, fmt.Errorf("database driver config error: %w", err)
	}

	config.Database.URL, err = getEnvStringSafe("DB_URL", "", config.Session.Backend == SessionBackendSQL)
	if err != nil {
		return config, fmt.Errorf("database URL config error: %w", err)
	}

	config.Database.MaxOpenConns, err = getEnvIntSafe("DB_MAX_OPEN_CONNS", 25, false)
	if err != nil {
		return config, fmt.Errorf("database max open conns config error: %w", err)
	}

	config.Database.MaxIdleConns, err = getEnvIntSafe("DB_MAX_IDLE_CONNS", 5, false)
	if err != nil {
		return config, fmt.Errorf("database max idle conns config error: %w", err)
	}

	config.Database.ConnMaxLifetime, err = getEnvDurationSafe("DB_CONN_MAX_LIFETIME", 5*time.Minute, false)
	if err != nil {
		return config, fmt.Errorf("database conn max lifetime config error: %w", err)
	}

	config.Database.ConnMaxIdleTime, err = getEnvDurationSafe("DB_CONN_MAX_IDLE_TIME", 5*time.Minute, false)
	if err != nil {
		return config, fmt.Errorf("database conn max idle time config error: %w", err)
	}

	// Security configuration
	config.Security.EnableHSTS, err = getEnvBoolSafe("SECURITY_ENABLE_HSTS", true, false)
	if err != nil {
		return config, fmt.Errorf("HSTS enable config error: %w", err)
	}

	config.Security.HSTSMaxAge, err = getEnvIntSafe("SECURITY_HSTS_MAX_AGE", 31536000, false)
	if err != nil {
		return config, fmt.Errorf("HSTS max age config error: %w", err)
	}

	config.Security.HSTSIncludeSubdomains, err = getEnvBoolSafe("SECURITY_HSTS_INCLUDE_SUBDOMAINS", true, false)
	if err != nil {
		return config, fmt.Errorf("HSTS include subdomains config error: %w", err)
	}

	config.Security.ContentSecurityPolicy, err = getEnvStringSafe("SECURITY_CSP", "default-src 'self'; script-src 'self' https://challenges.cloudflare.com; frame-src https://challenges.cloudflare.com; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'; frame-ancestors 'none'; form-action 'self'", false)
	if err != nil {
		return config, fmt.Errorf("CSP config error: %w", err)
	}

	config.Security.ReferrerPolicy, err = getEnvStringSafe("SECURITY_REFERRER_POLICY", "strict-origin-when-cross-origin", false)
	if err != nil {
		return config, fmt.Errorf("referrer policy config error: %w", err)
	}

	config.Security.PermissionsPolicy, err = getEnvStringSafe("SECURITY_PERMISSIONS_POLICY", "geolocation=(), microphone=(), camera=(), payment=(), usb=()", false)
	if err != nil {
		return config, fmt.Errorf("permissions policy config error: %w", err)
	}

	// Rate limit configuration
	config.RateLimit.Enabled, err = getEnvBoolSafe("RATE_LIMIT_ENABLED", true, false)
	if err != nil {
		return config, fmt.Errorf("rate limit enabled config error: %w", err)
	}

	config.RateLimit.AuthRequests, err = getEnvIntSafe("RATE_LIMIT_AUTH_REQUESTS", 10, false)
	if err != nil {
		return config, fmt.Errorf("rate limit auth requests config error: %w", err)
	}

	config.RateLimit.VoteRequests, err = getEnvIntSafe("RATE_LIMIT_VOTE_REQUESTS", 20, false)
	if err != nil {
		return config, fmt.Errorf("rate limit vote requests config error: %w", err)
	}

	config.RateLimit.WindowDuration, err = getEnvDurationSafe("RATE_LIMIT_WINDOW_DURATION", time.Minute, false)
	if err != nil {
		return config, fmt.Errorf("rate limit window duration config error: %w", err)
	}

	// Cache configuration
	config.Cache.Enabled, err = getEnvBoolSafe("CACHE_REDIS_ENABLED", false, config.Session.Backend == SessionBackendRedis)
	if err != nil {
		return config, fmt.Errorf("cache enabled config error: %w", err)
	}
	if config.Session.Backend == SessionBackendRedis && !config.Cache.Enabled {
		return config, fmt.Errorf("cache enabled config error: redis session backend needs CACHE_REDIS_ENABLED=true")
	}

	config.Cache.RedisAddr, err = getEnvStringSafe("REDIS_ADDR", "localhost:6379", false)
	if err != nil {
		return config, fmt.Errorf("Redis address config error: %w", err)
	}

	config.Cache.RedisPassword, err = getEnvStringSafe("REDIS_PASSWORD", "", false)
	if err != nil {
		return config, fmt.Errorf("Redis password config error: %w", err)
	}

	config.Cache.RedisDB, err = getEnvIntSafe("REDIS_DB", 0, false)
	if err != nil {
		return config, fmt.Errorf("Redis DB config error: %w", err)
	}

	config.Cache.RedisPoolSize, err = getEnvIntSafe("REDIS_POOL_SIZE", 10, false)
	if err != nil {
		return config, fmt.Errorf("Redis pool size config error: %w", err)
	}

	config.Cache.QueryTTL, err = getEnvDurationSafe("CACHE_QUERY_TTL", 5*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("cache query TTL config error: %w", err)
	}

	config.Cache.PollTTL, err = getEnvDurationSafe("CACHE_POLL_TTL", 10*time.Second, false)
	if err != nil {
		return config, fmt.Errorf("cache poll TTL config error: %w", err)
	}

	config.Cache.InMemoryMaxSize, err = getEnvIntSafe("CACHE_IN_MEMORY_MAX_SIZE", 10000, false)
	if err != nil {
		return config, fmt.Errorf("cache in-memory size config error: %w", err)
	}

	// Turnstile configuration
	config.Turnstile.SiteKey, err = getEnvStringSafe("TURNSTILE_SITE_KEY", "", true)
	if err != nil {
		return config, fmt.Errorf("turnstile site key config error: %w", err)
	}

	config.LogLevel, err = getEnvStringSafe("LOG_LEVEL", "info", false)
	if err != nil {
		return config, fmt.Errorf("log level config error: %w", err)
	}

	tz, err := getEnvStringSafe("TIMEZONE", "UTC", false)
	if err != nil {
		return config, fmt.Errorf("timezone config error: %w", err)
	}
	config.Location, err = time.LoadLocation(tz)
	if err != nil {
		return config, fmt.Errorf("timezone config error: %w", err)
	}

	return config, nil
}

func getEnvStringSafe(key, defaultValue string, required bool) (string, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		if required {
			return "", fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	return value, nil
}

func getEnvIntSafe(key string, defaultValue int, required bool) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return value, nil
}

func getEnvDurationSafe(key string, defaultValue time.Duration, required bool) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a valid duration: %w", key, err)
	}
	return value, nil
}

func getEnvBoolSafe(key string, defaultValue bool, required bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return false, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("environment variable %s must be a valid boolean: %w", key, err)
	}
	return value, nil
}

func getEnvEnvironmentSafe(key string, defaultValue Environment, required bool) (Environment, error) {
	env, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return "", fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	envValue := Environment(env)
	if !envValue.IsValid() {
		return "", fmt.Errorf("environment variable %s has invalid value: %s", key, env)
	}
	return envValue, nil
}
