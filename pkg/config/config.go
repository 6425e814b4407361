package config

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Redis   RedisConfig
	Auth    AuthConfig
	CORS    CORSConfig
	Log     LogConfig
	Cache   CacheConfig
	Circuit CircuitConfig
	LRS     LRSConfig
	Exports ExportsConfig
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig controls bearer-token verification on mutating endpoints.
type AuthConfig struct {
	Enabled bool
	Secret  string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig defines TTLs per entry category plus physical stale retention.
// StaleRetention bounds how long a logically expired result stays readable
// for the degradation fallback.
type CacheConfig struct {
	Enabled        bool
	DefaultTTL     time.Duration
	MetricsTTL     time.Duration
	ResultsTTL     time.Duration
	HealthTTL      time.Duration
	StaleRetention time.Duration
}

// TTLFor resolves the TTL for a named category, falling back to the default.
func (c CacheConfig) TTLFor(category string) time.Duration {
	switch category {
	case "metrics":
		if c.MetricsTTL > 0 {
			return c.MetricsTTL
		}
	case "results":
		if c.ResultsTTL > 0 {
			return c.ResultsTTL
		}
	case "health":
		if c.HealthTTL > 0 {
			return c.HealthTTL
		}
	}
	return c.DefaultTTL
}

// CircuitConfig tunes the per-instance circuit breaker.
type CircuitConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// LRSAuthConfig describes how to authorize against a statement store.
// Type is one of "basic", "bearer" or "custom".
type LRSAuthConfig struct {
	Type     string            `json:"type"`
	Username string            `json:"username"`
	Password string            `json:"password"`
	Token    string            `json:"token"`
	Headers  map[string]string `json:"headers"`
}

// LRSInstanceConfig identifies one remote statement store. ID is the
// authoritative instance identity stamped on every ingested statement.
type LRSInstanceConfig struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Endpoint   string        `json:"endpoint"`
	Timeout    time.Duration `json:"-"`
	TimeoutMs  int           `json:"timeout_ms"`
	MaxRetries int           `json:"max_retries"`
	Auth       LRSAuthConfig `json:"auth"`
}

// LRSConfig groups statement-store instances and query limits.
type LRSConfig struct {
	Instances     []LRSInstanceConfig
	MaxStatements int
}

// ExportsConfig toggles the result export endpoints.
type ExportsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		Enabled: v.GetBool("AUTH_ENABLED"),
		Secret:  v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:        v.GetBool("CACHE_ENABLED"),
		DefaultTTL:     parseDuration(v.GetString("CACHE_DEFAULT_TTL"), 10*time.Minute),
		MetricsTTL:     parseDuration(v.GetString("CACHE_METRICS_TTL"), 10*time.Minute),
		ResultsTTL:     parseDuration(v.GetString("CACHE_RESULTS_TTL"), 5*time.Minute),
		HealthTTL:      parseDuration(v.GetString("CACHE_HEALTH_TTL"), 30*time.Second),
		StaleRetention: parseDuration(v.GetString("CACHE_STALE_RETENTION"), 24*time.Hour),
	}

	cfg.Circuit = CircuitConfig{
		FailureThreshold: v.GetInt("CIRCUIT_FAILURE_THRESHOLD"),
		Cooldown:         parseDuration(v.GetString("CIRCUIT_COOLDOWN"), 30*time.Second),
	}

	instances, err := parseInstances(v)
	if err != nil {
		return nil, err
	}
	cfg.LRS = LRSConfig{
		Instances:     instances,
		MaxStatements: v.GetInt("LRS_MAX_STATEMENTS"),
	}

	cfg.Exports = ExportsConfig{Enabled: v.GetBool("ENABLE_EXPORTS")}

	return cfg, nil
}

// parseInstances reads LRS_INSTANCES as a JSON array when present, otherwise
// falls back to the flat single-instance variables.
func parseInstances(v *viper.Viper) ([]LRSInstanceConfig, error) {
	if raw := v.GetString("LRS_INSTANCES"); raw != "" {
		var instances []LRSInstanceConfig
		if err := json.Unmarshal([]byte(raw), &instances); err != nil {
			return nil, err
		}
		for i := range instances {
			applyInstanceDefaults(&instances[i])
		}
		return instances, nil
	}

	instance := LRSInstanceConfig{
		ID:         v.GetString("LRS_ID"),
		Name:       v.GetString("LRS_NAME"),
		Endpoint:   v.GetString("LRS_ENDPOINT"),
		TimeoutMs:  v.GetInt("LRS_TIMEOUT_MS"),
		MaxRetries: v.GetInt("LRS_MAX_RETRIES"),
		Auth: LRSAuthConfig{
			Type:     v.GetString("LRS_AUTH_TYPE"),
			Username: v.GetString("LRS_USERNAME"),
			Password: v.GetString("LRS_PASSWORD"),
			Token:    v.GetString("LRS_TOKEN"),
		},
	}
	applyInstanceDefaults(&instance)
	return []LRSInstanceConfig{instance}, nil
}

func applyInstanceDefaults(instance *LRSInstanceConfig) {
	if instance.TimeoutMs <= 0 {
		instance.TimeoutMs = 10000
	}
	instance.Timeout = time.Duration(instance.TimeoutMs) * time.Millisecond
	if instance.MaxRetries <= 0 {
		instance.MaxRetries = 3
	}
	if instance.Name == "" {
		instance.Name = instance.ID
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_DEFAULT_TTL", "10m")
	v.SetDefault("CACHE_METRICS_TTL", "10m")
	v.SetDefault("CACHE_RESULTS_TTL", "5m")
	v.SetDefault("CACHE_HEALTH_TTL", "30s")
	v.SetDefault("CACHE_STALE_RETENTION", "24h")

	v.SetDefault("CIRCUIT_FAILURE_THRESHOLD", 5)
	v.SetDefault("CIRCUIT_COOLDOWN", "30s")

	v.SetDefault("LRS_INSTANCES", "")
	v.SetDefault("LRS_ID", "default")
	v.SetDefault("LRS_NAME", "Default LRS")
	v.SetDefault("LRS_ENDPOINT", "http://localhost:8081/xapi")
	v.SetDefault("LRS_TIMEOUT_MS", 10000)
	v.SetDefault("LRS_MAX_RETRIES", 3)
	v.SetDefault("LRS_AUTH_TYPE", "basic")
	v.SetDefault("LRS_USERNAME", "")
	v.SetDefault("LRS_PASSWORD", "")
	v.SetDefault("LRS_TOKEN", "")
	v.SetDefault("LRS_MAX_STATEMENTS", 1000)

	v.SetDefault("ENABLE_EXPORTS", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
