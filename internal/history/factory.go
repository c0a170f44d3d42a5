package history

import (
	"context"
	"fmt"
	"strings"
)

// Backend names a history store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// Options configures Open.
type Options struct {
	Backend string
	// DSN is a file path for sqlite, a postgres URL or a redis address.
	DSN           string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// DetectBackend infers the backend from a DSN when none is configured.
func DetectBackend(dsn string) Backend {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return BackendPostgres
	case strings.HasPrefix(dsn, "redis://"):
		return BackendRedis
	case dsn == "" || dsn == ":memory:":
		return BackendMemory
	default:
		return BackendSQLite
	}
}

// Open creates the configured store.
func Open(ctx context.Context, opts Options) (Store, error) {
	backend := Backend(opts.Backend)
	if backend == "" {
		backend = DetectBackend(opts.DSN)
	}
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		if opts.DSN == "" {
			return nil, fmt.Errorf("sqlite history requires a database path")
		}
		return NewSQLiteStore(opts.DSN)
	case BackendPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres history requires a dsn")
		}
		return NewPostgresStore(ctx, opts.DSN)
	case BackendRedis:
		addr := strings.TrimPrefix(opts.DSN, "redis://")
		if addr == "" {
			return nil, fmt.Errorf("redis history requires an address")
		}
		s, err := NewRedisStore(ctx, addr, opts.RedisPassword, opts.RedisDB)
		if err != nil {
			return nil, err
		}
		if opts.RedisPrefix != "" {
			s.prefix = opts.RedisPrefix
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown history backend: %s (supported: memory, sqlite, postgres, redis)", backend)
	}
}
