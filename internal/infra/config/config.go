package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Auth      AuthSettings      `mapstructure:"auth"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and key prefixes.
type RedisSettings struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	DB               int           `mapstructure:"db"`
	Password         string        `mapstructure:"password"`
	TLSEnabled       bool          `mapstructure:"tls_enabled"`
	RevocationPrefix string        `mapstructure:"revocation_prefix"`
	ResolverPrefix   string        `mapstructure:"resolver_prefix"`
	ResolverTTL      time.Duration `mapstructure:"resolver_ttl"`
}

// KafkaSettings configures the audit event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type JWTSettings struct {
	KeyDirectory    string        `mapstructure:"key_directory"`
	KeyID           string        `mapstructure:"key_id"`
	SessionTokenTTL time.Duration `mapstructure:"session_token_ttl"`
}

// AuthSettings tunes the authorization core.
type AuthSettings struct {
	SessionTTL           time.Duration `mapstructure:"session_ttl"`
	SessionLimit         int           `mapstructure:"session_limit"`
	SessionEvictOldest   bool          `mapstructure:"session_evict_oldest"`
	RotationGracePeriod  time.Duration `mapstructure:"rotation_grace_period"`
	AllowTrialPublishers bool          `mapstructure:"allow_trial_publishers"`
	StoreTimeout         time.Duration `mapstructure:"store_timeout"`
	StoreRetryBackoff    time.Duration `mapstructure:"store_retry_backoff"`
}

// RateLimitSettings configures the default per-token usage window. Records
// may carry their own override policy.
type RateLimitSettings struct {
	Window       time.Duration `mapstructure:"window"`
	MaxPerWindow int           `mapstructure:"max_per_window"`
}

type TelemetrySettings struct {
	MetricsPort int    `mapstructure:"metrics_port"`
	Namespace   string `mapstructure:"namespace"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("PUB")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.revocation_prefix",
		"redis.resolver_prefix",
		"redis.resolver_ttl",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.key_directory",
		"jwt.key_id",
		"jwt.session_token_ttl",
		"auth.session_ttl",
		"auth.session_limit",
		"auth.session_evict_oldest",
		"auth.rotation_grace_period",
		"auth.allow_trial_publishers",
		"auth.store_timeout",
		"auth.store_retry_backoff",
		"rate_limit.window",
		"rate_limit.max_per_window",
		"telemetry.metrics_port",
		"telemetry.namespace",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "publishing-platform")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "publishing")
	v.SetDefault("postgres.password", "publishing_password")
	v.SetDefault("postgres.database", "publishing")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.revocation_prefix", "authz:revoked")
	v.SetDefault("redis.resolver_prefix", "authz:resolved")
	v.SetDefault("redis.resolver_ttl", "2m")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "publishing")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.key_id", "v1")
	v.SetDefault("jwt.session_token_ttl", "30m")

	v.SetDefault("auth.session_ttl", "12h")
	v.SetDefault("auth.session_limit", 5)
	v.SetDefault("auth.session_evict_oldest", false)
	v.SetDefault("auth.rotation_grace_period", "24h")
	v.SetDefault("auth.allow_trial_publishers", true)
	v.SetDefault("auth.store_timeout", "2s")
	v.SetDefault("auth.store_retry_backoff", "100ms")

	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.max_per_window", 600)

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.namespace", "publishing")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "PUB_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
