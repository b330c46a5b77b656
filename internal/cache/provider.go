package cache

import (
	"context"
	"time"
)

// Provider supplies the shared-key operations the alert dispatcher needs for
// de-duplication. SetNX is the primitive: the first writer of an alert key
// wins, later writers see false and skip the re-send.
type Provider interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Close() error
}

// NoopProvider implements Provider without storing anything; every SetNX
// claims the key, so dedupe falls back to sink-side idempotent writes.
type NoopProvider struct{}

// SetNX pretends to store the value and reports success.
func (NoopProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

// Del is a no-op.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
