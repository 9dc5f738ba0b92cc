// Package session holds the per-user key/value state that lives exactly as
// long as the browser session: pending confirmations, the active dialog
// prompt and flash notices.
package session

import (
	"context"
	"time"
)

// DefaultTTL is the idle lifetime of a session when none is configured.
const DefaultTTL = 30 * time.Minute

// Backend stores values for many sessions. A write refreshes the idle
// lifetime of the whole session; once it lapses every value of the session is
// gone. Delete and Destroy must not fail for missing entries.
type Backend interface {
	Get(ctx context.Context, sessionID, name string) (value []byte, found bool, err error)
	Set(ctx context.Context, sessionID, name string, value []byte) error
	Delete(ctx context.Context, sessionID, name string) error
	Destroy(ctx context.Context, sessionID string) error
	Close() error
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
