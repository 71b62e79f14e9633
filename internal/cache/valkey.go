package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

const valkeyPrefix = "go3dep:"

// Valkey shares responses between processes through a Valkey server.
type Valkey struct {
	client valkey.Client
	ttl    time.Duration
}

// NewValkey connects to addr.
func NewValkey(addr string, ttl time.Duration) (*Valkey, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Valkey{client: client, ttl: ttl}, nil
}

// Get retrieves a value by key.
func (v *Valkey) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := v.client.Do(ctx, v.client.B().Get().Key(valkeyPrefix+key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set stores a value with the configured TTL.
func (v *Valkey) Set(ctx context.Context, key string, value []byte) error {
	k := valkeyPrefix + key
	if v.ttl <= 0 {
		return v.client.Do(ctx, v.client.B().Set().Key(k).Value(string(value)).Build()).Error()
	}
	return v.client.Do(ctx,
		v.client.B().Set().Key(k).Value(string(value)).Ex(v.ttl).Build(),
	).Error()
}

// Close releases the client.
func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}
