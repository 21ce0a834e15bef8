package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key is the fixed storage key for the persisted bearer token.
const Key = "miniDrive:token"

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown token store backend")

// Store persists one token string.
//
// Load reports ok=false when no token is stored. Clear on an empty store is a
// no-op and returns nil.
type Store interface {
	Load(ctx context.Context) (token string, ok bool, err error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	Addr    string        `yaml:"redis_addr"`
	DB      int           `yaml:"redis_db"`
	Prefix  string        `yaml:"redis_prefix"`
	TTL     time.Duration `yaml:"ttl"`
}

// Open builds the store described by cfg. The returned close func releases
// backend resources and is never nil.
func Open(cfg Config) (Store, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), func() error { return nil }, nil
	case BackendFile:
		store, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case BackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{cfg.Addr},
			DB:    cfg.DB,
		})
		return NewRedisStore(client, cfg.Prefix, cfg.TTL), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Provider adapts a store into a token provider: it returns the persisted
// token or "" when none is stored.
func Provider(s Store) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		token, ok, err := s.Load(ctx)
		if err != nil || !ok {
			return "", err
		}
		return token, nil
	}
}
