// Package config loads deployment configuration from the environment so main
// stays lean. Every knob has a development-friendly default; production
// overrides the secrets.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration for a covault instance.
type Config struct {
	Server   ServerConfig
	Vault    VaultConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Guard    GuardConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string        `env:"COVAULT_ADDR" envDefault:":8080"`
	JWTSigningKey   string        `env:"COVAULT_JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	WebhookSecret   string        `env:"COVAULT_WEBHOOK_SECRET" envDefault:"dev-webhook-secret"`
	RequestTimeout  time.Duration `env:"COVAULT_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"COVAULT_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// VaultConfig seeds the engine on first boot. Once a journal exists it wins
// over these values: membership is replayed, not re-seeded.
type VaultConfig struct {
	Members []string `env:"COVAULT_MEMBERS" envSeparator:","`
	Quorum  int      `env:"COVAULT_QUORUM" envDefault:"2"`
}

// PostgresConfig covers the journal and the audit outbox.
type PostgresConfig struct {
	URL         string        `env:"COVAULT_POSTGRES_URL"`
	MaxConns    int32         `env:"COVAULT_POSTGRES_MAX_CONNS" envDefault:"10"`
	ConnTimeout time.Duration `env:"COVAULT_POSTGRES_CONN_TIMEOUT" envDefault:"5s"`
}

// RedisConfig covers the abuse guard store. An empty URL disables Redis and
// the guard falls back to its in-memory store.
type RedisConfig struct {
	URL          string        `env:"COVAULT_REDIS_URL"`
	PoolSize     int           `env:"COVAULT_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"COVAULT_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"COVAULT_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"COVAULT_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"COVAULT_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig covers the audit outbox shipper. Empty brokers disable
// shipping; audit rows stay in the outbox until a shipper picks them up.
type KafkaConfig struct {
	Brokers      []string      `env:"COVAULT_KAFKA_BROKERS" envSeparator:","`
	Topic        string        `env:"COVAULT_KAFKA_TOPIC" envDefault:"covault.audit"`
	PollInterval time.Duration `env:"COVAULT_KAFKA_POLL_INTERVAL" envDefault:"2s"`
}

// GuardConfig tunes the abuse throttle.
type GuardConfig struct {
	MaxFailures int           `env:"COVAULT_GUARD_MAX_FAILURES" envDefault:"5"`
	Window      time.Duration `env:"COVAULT_GUARD_WINDOW" envDefault:"1m"`
	Lockout     time.Duration `env:"COVAULT_GUARD_LOCKOUT" envDefault:"15m"`
}

// Load parses the environment into a Config and validates the combination.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Vault.Members) == 0 {
		return errors.New("config: COVAULT_MEMBERS must list at least one member")
	}
	if c.Vault.Quorum < 1 || c.Vault.Quorum > len(c.Vault.Members) {
		return fmt.Errorf("config: quorum %d out of range for %d members", c.Vault.Quorum, len(c.Vault.Members))
	}
	return nil
}
