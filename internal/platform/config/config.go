// Package config loads the registry configuration from a YAML file and the
// environment so main stays lean.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root application configuration.
type Config struct {
	EPP      EPPConfig      `yaml:"epp"`
	Whois    WhoisConfig    `yaml:"whois"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Session  SessionConfig  `yaml:"session"`
	Limits   LimitsConfig   `yaml:"limits"`
	Expiry   ExpiryConfig   `yaml:"expiry"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`
}

// EPPConfig holds the registry wire-protocol listener settings.
type EPPConfig struct {
	Addr string `yaml:"addr" env:"EPP_ADDR" env-default:":700"`
}

// WhoisConfig holds the lookup protocol listener settings.
type WhoisConfig struct {
	Addr string `yaml:"addr" env:"WHOIS_ADDR" env-default:":43"`
}

// HTTPConfig holds the health/metrics server settings.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"             env:"HTTP_ADDR"             env-default:":3000"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"               env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"         env:"DATABASE_MAX_CONNS"         env-default:"25"`
	MinConns        int32         `yaml:"min_conns"         env:"DATABASE_MIN_CONNS"         env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DATABASE_MAX_CONN_LIFETIME" env-default:"1h"`
}

// RedisConfig holds Redis connection settings. An empty URL selects the
// in-memory rate limit store.
type RedisConfig struct {
	URL          string        `yaml:"url"           env:"REDIS_URL"`
	PoolSize     int           `yaml:"pool_size"     env:"REDIS_POOL_SIZE"     env-default:"10"`
	DialTimeout  time.Duration `yaml:"dial_timeout"  env:"REDIS_DIAL_TIMEOUT"  env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout"  env:"REDIS_READ_TIMEOUT"  env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`
}

// SessionConfig controls session idle expiration and garbage collection.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"   env:"SESSION_IDLE_TIMEOUT"   env-default:"30m"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SESSION_SWEEP_INTERVAL" env-default:"5m"`
}

// LimitsConfig holds the two admission layers: the per-source rate limit and
// the per-registrar usage quotas with their penalty ladder.
type LimitsConfig struct {
	RateWindow        time.Duration `yaml:"rate_window"         env:"RATE_WINDOW"         env-default:"60s"`
	RateCap           int           `yaml:"rate_cap"            env:"RATE_CAP"            env-default:"100"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE" env-default:"100"`
	RequestsPerHour   int           `yaml:"requests_per_hour"   env:"REQUESTS_PER_HOUR"   env-default:"1000"`
	PenaltyThreshold  int           `yaml:"penalty_threshold"   env:"PENALTY_THRESHOLD"   env-default:"3"`
	PenaltyDelay      time.Duration `yaml:"penalty_delay"       env:"PENALTY_DELAY"       env-default:"2s"`
	PenaltyCredits    int           `yaml:"penalty_credits"     env:"PENALTY_CREDITS"     env-default:"5"`
}

// ExpiryConfig controls the drop scheduler.
type ExpiryConfig struct {
	SessionWindow time.Duration `yaml:"session_window" env:"EXPIRY_SESSION_WINDOW" env-default:"42m"`
	RunInterval   time.Duration `yaml:"run_interval"   env:"EXPIRY_RUN_INTERVAL"   env-default:"24h"`
}

// RegistryConfig holds namespace policy values.
type RegistryConfig struct {
	Suffix             string        `yaml:"suffix"              env:"REGISTRY_SUFFIX"              env-default:".tsh"`
	RegistrationPeriod time.Duration `yaml:"registration_period" env:"REGISTRY_REGISTRATION_PERIOD" env-default:"240h"`
	ServerID           string        `yaml:"server_id"           env:"REGISTRY_SERVER_ID"           env-default:"tsh registry server epp.nic.tsh"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// Load reads configuration from path (if non-empty) with environment
// overrides, or from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}
