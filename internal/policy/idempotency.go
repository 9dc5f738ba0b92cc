package policy

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	gocache "github.com/patrickmn/go-cache"
)

type idempotencyEntry struct {
	Fingerprint string
	Response    []byte
}

// IdempotencyStore remembers tool responses per idempotency key so a retried
// call replays the first answer instead of acting twice.
type IdempotencyStore struct {
	entries *gocache.Cache
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &IdempotencyStore{entries: gocache.New(ttl, ttl)}
}

func storageKey(toolName, idempotencyKey string) string {
	return toolName + "::" + idempotencyKey
}

// Lookup reports a stored response for the key. conflict is set when the key
// was used before with different arguments.
func (s *IdempotencyStore) Lookup(toolName, idempotencyKey, fingerprint string) (response []byte, replay bool, conflict bool) {
	if s == nil {
		return nil, false, false
	}
	v, ok := s.entries.Get(storageKey(toolName, idempotencyKey))
	if !ok {
		return nil, false, false
	}
	entry := v.(idempotencyEntry)
	if entry.Fingerprint != fingerprint {
		return nil, false, true
	}
	out := make([]byte, len(entry.Response))
	copy(out, entry.Response)
	return out, true, false
}

func (s *IdempotencyStore) Save(toolName, idempotencyKey, fingerprint string, response any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(response)
	if err != nil {
		return errors.Wrap(err, "encode idempotent response")
	}
	s.entries.SetDefault(storageKey(toolName, idempotencyKey), idempotencyEntry{
		Fingerprint: fingerprint,
		Response:    b,
	})
	return nil
}
