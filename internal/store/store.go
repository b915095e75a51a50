// Package store holds the pending stream set and the scored result set shared by
// the feeder, the workers and the ranking views.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/rotisserie/internal/types"
)

// ErrUnavailable wraps connectivity failures of the backing store.
var ErrUnavailable = errors.New("queue store unavailable")

// Queue is the boundary between workers and the backing store.
type Queue interface {
	// Pop atomically removes one pending stream name. ok is false when the set is empty.
	Pop(ctx context.Context) (name string, ok bool, err error)
	// Upsert overwrites the players-remaining score for name.
	Upsert(ctx context.Context, name string, score float64) error
	// Push adds names to the pending set and reports how many were new.
	Push(ctx context.Context, names ...string) (int, error)
	// Ranked returns scored streams by ascending score.
	Ranked(ctx context.Context) ([]types.RankedStream, error)
	// Reset empties both sets.
	Reset(ctx context.Context) error
	Close() error
}

// Backends accepted by Open.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	ReadKey       string
	WriteKey      string
	PostgresURL   string
}

// Open connects to the configured backend.
func Open(ctx context.Context, opts Options) (Queue, error) {
	switch opts.Backend {
	case BackendRedis, "":
		return NewRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.ReadKey, opts.WriteKey)
	case BackendPostgres:
		return NewPostgres(ctx, opts.PostgresURL)
	}
	return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

func ranked(name string, score float64) types.RankedStream {
	return types.RankedStream{Name: name, Alive: score, URL: types.PlayerURL(name)}
}
