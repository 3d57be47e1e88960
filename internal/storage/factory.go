package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/epistimio/orion-go/internal/storage/memory"
	"github.com/epistimio/orion-go/internal/storage/postgres"
	"github.com/epistimio/orion-go/internal/storage/sqlite"
)

// Profile selects a deployment's storage backend, mirroring the teacher's
// Lite/Standard profile switch.
type Profile string

const (
	ProfileMemory   Profile = "memory"
	ProfileLite     Profile = "lite"     // embedded SQLite, single node
	ProfileStandard Profile = "standard" // PostgreSQL, multi-node
)

// Options configures New. Only the fields relevant to the selected Profile
// are read.
type Options struct {
	Profile Profile

	// Lite profile
	SQLitePath string

	// Standard profile
	PostgresDSN string

	// Optional Redis address, read only by NewRedisClient; New ignores it.
	RedisAddr string
}

// ErrInvalidProfile is returned when Options names an unsupported profile
// or omits a field that profile requires.
type ErrInvalidProfile struct {
	Profile Profile
	Reason  string
}

func (e *ErrInvalidProfile) Error() string {
	return fmt.Sprintf("invalid storage profile %q: %s", e.Profile, e.Reason)
}

// New constructs the Backend for opts.Profile, applying schema migrations
// as a side effect for the sqlite and postgres backends.
func New(ctx context.Context, opts Options, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Profile {
	case ProfileMemory, "":
		logger.Info("storage: using in-memory backend")
		return memory.New(logger), nil

	case ProfileLite:
		if opts.SQLitePath == "" {
			return nil, &ErrInvalidProfile{Profile: opts.Profile, Reason: "sqlite_path is required"}
		}
		logger.Info("storage: using sqlite backend", "path", opts.SQLitePath)
		backend, err := sqlite.Open(ctx, opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("storage: init sqlite: %w", err)
		}
		return backend, nil

	case ProfileStandard:
		if opts.PostgresDSN == "" {
			return nil, &ErrInvalidProfile{Profile: opts.Profile, Reason: "postgres_dsn is required"}
		}
		logger.Info("storage: using postgres backend")
		backend, err := postgres.Open(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("storage: init postgres: %w", err)
		}
		return backend, nil

	default:
		return nil, &ErrInvalidProfile{Profile: opts.Profile, Reason: "unknown profile"}
	}
}

// NewRedisClient builds an optional Redis client for the rediscache sweep
// lock and pending-trial cache, when opts.RedisAddr is set. Nothing in this
// repository calls it.
func NewRedisClient(opts Options) *redis.Client {
	if opts.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
}
