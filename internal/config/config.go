package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Security   SecurityConfig
	Resilience ResilienceConfig
	RateLimit  RateLimitConfig
	Scheduler  SchedulerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL.
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode + "&prepare_threshold=0"
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// JWTConfig holds JWT configuration for the operator/admin API surface.
type JWTConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// SecurityConfig holds encryption keys.
type SecurityConfig struct {
	// CredentialEncryptionKey seeds the C1 provider-credential vault.
	CredentialEncryptionKey string
}

// ResilienceConfig tunes the C4 breaker/retry/timeout pipeline. Values apply
// to every adapter call; the pipeline does not read the MaxRetries or
// Timeout fields of a ProviderConfiguration row.
type ResilienceConfig struct {
	BreakerMaxRequests   uint32
	BreakerInterval      time.Duration
	BreakerTimeout       time.Duration
	BreakerFailureRatio  float64
	RetryMaxAttempts     int
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration
	CallTimeout          time.Duration
}

// RateLimitConfig tunes the C9 webhook ingress limiter.
type RateLimitConfig struct {
	WebhookRequestsPerSecond float64
	WebhookBurst             int
}

// SchedulerConfig tunes the C12 background loops.
type SchedulerConfig struct {
	WebhookRetryInterval time.Duration
	CleanupInterval      time.Duration
	WebhookRetention     time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "paygate"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", "change-this-in-production"),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		Security: SecurityConfig{
			CredentialEncryptionKey: getEnv("CREDENTIAL_ENCRYPTION_KEY", "0000000000000000000000000000000000000000000000000000000000000000"), // 32-byte hex string
		},
		Resilience: ResilienceConfig{
			BreakerMaxRequests:  uint32(getEnvAsInt("BREAKER_MAX_REQUESTS", 5)),
			BreakerInterval:     getEnvAsDuration("BREAKER_INTERVAL", 30*time.Second),
			BreakerTimeout:      getEnvAsDuration("BREAKER_TIMEOUT", 30*time.Second),
			BreakerFailureRatio: getEnvAsFloat("BREAKER_FAILURE_RATIO", 0.5),
			RetryMaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay:      getEnvAsDuration("RETRY_BASE_DELAY", time.Second),
			RetryMaxDelay:       getEnvAsDuration("RETRY_MAX_DELAY", 5*time.Second),
			CallTimeout:         getEnvAsDuration("PROVIDER_CALL_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			WebhookRequestsPerSecond: getEnvAsFloat("WEBHOOK_RATE_LIMIT_RPS", 100.0/60),
			WebhookBurst:             getEnvAsInt("WEBHOOK_RATE_LIMIT_BURST", 100),
		},
		Scheduler: SchedulerConfig{
			WebhookRetryInterval: getEnvAsDuration("WEBHOOK_RETRY_INTERVAL", 30*time.Second),
			CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", 24*time.Hour),
			WebhookRetention:     getEnvAsDuration("WEBHOOK_RETENTION", 90*24*time.Hour),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
