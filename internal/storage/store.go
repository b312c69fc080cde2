// Package storage hands finished call records to a backing store and
// returns an opaque reference for each.
package storage

import (
	"context"
	"fmt"

	"call-recap-service/internal/models"
)

// Backend names.
const (
	BackendLog   = "log"
	BackendRedis = "redis"
	BackendSQL   = "sql"
	BackendKafka = "kafka"
)

// Store consumes a finished record and returns a reference to it.
type Store interface {
	Save(ctx context.Context, rec models.StructuredRecord) (string, error)
}

// Closer is implemented by stores holding connections.
type Closer interface {
	Close() error
}

// Config selects and configures the backend.
type Config struct {
	Backend string
	Redis   RedisConfig
	SQL     SQLConfig
}

// Open builds the configured store. The kafka backend is served by the
// events publisher and is not constructed here.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendLog:
		return NewLogStore(), nil
	case BackendRedis:
		return NewRedisStore(cfg.Redis)
	case BackendSQL:
		s, err := NewSQLStore(cfg.SQL)
		if err != nil {
			return nil, err
		}
		if cfg.SQL.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
