package shared

import (
	"context"
	"time"
)

// ClaimStore grants short-lived exclusive claims on a key. It guards external
// side effects (such as creating an exchange at a routing provider) that must
// happen at most once even when two requests race.
type ClaimStore interface {
	// Claim marks the key as taken for ttl.
	// Returns true if the caller now holds the claim, false if someone else does.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a claim before its TTL runs out
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}
