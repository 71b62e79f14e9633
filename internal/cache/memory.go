package cache

import (
	"context"
	"time"

	"github.com/karlseguin/ccache/v3"
)

// Memory keeps responses in an LRU bounded by entry count.
type Memory struct {
	lru *ccache.Cache[[]byte]
	ttl time.Duration
}

// NewMemory returns an in-process cache holding up to size entries.
func NewMemory(size int64, ttl time.Duration) *Memory {
	if size <= 0 {
		size = 512
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Memory{
		lru: ccache.New(ccache.Configure[[]byte]().MaxSize(size).PercentToPrune(10)),
		ttl: ttl,
	}
}

// Get returns a live entry.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := m.lru.Get(key)
	if item == nil || item.Expired() {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

// Set stores value for the configured TTL.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.lru.Set(key, value, m.ttl)
	return nil
}

// Close stops the background worker.
func (m *Memory) Close() error {
	m.lru.Stop()
	return nil
}
