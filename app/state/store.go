package state

import (
	"context"
	"fmt"
	"strings"
)

const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"

	DefaultRedisKey = "feed-digest:watermarks"
)

// Store persists watermarks between runs.
//
// Load always returns a usable value: on missing data it is empty, on
// corrupt data it is empty or partial and comes with a non-nil error
// (usually wrapping CorruptError). Callers log the error and continue.
type Store interface {
	Load(ctx context.Context) (Watermarks, error)
	Save(ctx context.Context, marks Watermarks) error
	Close() error
	String() string
}

type Config struct {
	Driver string
	Path   string // file and sqlite drivers
	DSN    string // postgres and redis drivers
	Key    string // redis hash key
}

// Enabled reports whether a state location is configured, which turns on
// incremental mode.
func (c Config) Enabled() bool {
	switch c.driver() {
	case DriverPostgres, DriverRedis:
		return c.DSN != ""
	default:
		return c.Path != ""
	}
}

func (c Config) driver() string {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	if d == "" {
		return DriverFile
	}
	return d
}

// Open returns the configured store, or nil when incremental mode is off.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	switch cfg.driver() {
	case DriverFile:
		return NewFileStore(cfg.Path), nil
	case DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverRedis:
		key := cfg.Key
		if key == "" {
			key = DefaultRedisKey
		}
		s, err := OpenRedis(ctx, cfg.DSN, key)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown state driver: %q", cfg.Driver)
	}
}
