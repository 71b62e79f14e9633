// Package cache stores raw service responses between requests and runs.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/woozymasta/go3dep/internal/config"
)

// Store is a byte-oriented key/value cache.
// Get reports a miss with ok=false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Entry is the envelope written to a Store for one HTTP response.
type Entry struct {
	Stored      time.Time `msgpack:"stored"`
	URL         string    `msgpack:"url"`
	ContentType string    `msgpack:"content_type"`
	Body        []byte    `msgpack:"body"`
}

// Marshal encodes the entry.
func (e *Entry) Marshal() ([]byte, error) {
	return msgpack.Marshal(e)
}

// UnmarshalEntry decodes an entry written by Marshal.
func UnmarshalEntry(b []byte) (*Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}

// Open returns the store selected by cfg.
func Open(cfg config.Cache) (Store, error) {
	log.Debug().
		Str("backend", cfg.Backend).
		Dur("ttl", cfg.TTL).
		Msg("Opening response cache")

	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "memory":
		return NewMemory(cfg.Size, cfg.TTL), nil
	case "sqlite":
		return NewSQLite(cfg.Path, cfg.TTL)
	case "valkey":
		return NewValkey(cfg.Addr, cfg.TTL)
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

// Nop never stores anything.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set discards the value.
func (Nop) Set(context.Context, string, []byte) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
