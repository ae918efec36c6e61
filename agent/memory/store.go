package memory

import (
	"fmt"
	"strings"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
)

const (
	BackendNone     = "none"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Backend  string         `envconfig:"BACKEND" split_words:"true" default:"none"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	Postgres PostgresConfig `envconfig:"POSTGRES"`
}

// New builds the configured backend. An unrecognized backend name is a
// startup error, not a silent fallback.
func New(cfg Config) (contractx.MemoryStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendNone:
		return NewNoopStore(), nil
	case BackendRedis:
		return NewRedisStore(cfg.Redis)
	case BackendPostgres:
		return NewPostgresStore(cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}
