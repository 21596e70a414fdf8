// Package storage provides the key/value slots the authorization core
// persists into: a durable file store, an ephemeral Redis store and an
// in-process memory store. Each key holds exactly one record.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Keys used by the authorization core.
const (
	KeyLicenseCache = "license_cache"
	KeyLicenseUsage = "license_usage"
)

// ErrNotFound is returned by Read when the key holds no record.
var ErrNotFound = errors.New("storage: record not found")

var errInvalidKey = errors.New("storage: invalid key")

// Store is a single-record-per-key slot.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Kind selects a Store implementation.
type Kind string

const (
	KindFile   Kind = "file"
	KindRedis  Kind = "redis"
	KindMemory Kind = "memory"
)

// ParseKind validates a store kind name. Empty means KindFile.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case "":
		return KindFile, nil
	case KindFile, KindRedis, KindMemory:
		return k, nil
	default:
		return "", fmt.Errorf("unknown license store %q (want file, redis or memory)", raw)
	}
}

// Options configures Open.
type Options struct {
	Kind          Kind
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open builds the Store described by opts. The returned close function
// releases any connection the store owns and is never nil.
func Open(opts Options) (Store, func() error, error) {
	noop := func() error { return nil }

	switch opts.Kind {
	case KindFile, "":
		store, err := NewFileStore(opts.Dir)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case KindRedis:
		store, err := DialRedisStore(opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case KindMemory:
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown license store %q", opts.Kind)
	}
}

func validateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", errInvalidKey, key)
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", errInvalidKey, key)
	}
	return nil
}
