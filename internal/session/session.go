package session

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

const flashKey = "_flash"

// Session is the view of one user's session over a Backend.
type Session struct {
	id        string
	backend   Backend
	destroyed atomic.Bool
}

func New(id string, backend Backend) *Session {
	return &Session{id: id, backend: backend}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Put(ctx context.Context, key string, value []byte) error {
	return s.backend.Set(ctx, s.id, key, value)
}

func (s *Session) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.backend.Get(ctx, s.id, key)
}

func (s *Session) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.id, key)
}

// Destroy ends the session: every value stored in it is dropped.
func (s *Session) Destroy(ctx context.Context) error {
	if err := s.backend.Destroy(ctx, s.id); err != nil {
		return err
	}
	s.destroyed.Store(true)
	return nil
}

// Destroyed reports whether Destroy succeeded on this view. The HTTP layer
// uses it to expire the cookie of a session ended mid-request.
func (s *Session) Destroyed() bool {
	return s.destroyed.Load()
}

// AddFlash queues a notice to be shown on the next rendered page.
func (s *Session) AddFlash(ctx context.Context, message string) error {
	flashes, err := s.flashes(ctx)
	if err != nil {
		return err
	}
	flashes = append(flashes, message)
	raw, err := json.Marshal(flashes)
	if err != nil {
		return errors.Wrap(err, "encode flashes")
	}
	return s.Put(ctx, flashKey, raw)
}

// PopFlashes returns queued notices and clears them.
func (s *Session) PopFlashes(ctx context.Context) ([]string, error) {
	flashes, err := s.flashes(ctx)
	if err != nil {
		return nil, err
	}
	if len(flashes) == 0 {
		return nil, nil
	}
	if err := s.Delete(ctx, flashKey); err != nil {
		return nil, err
	}
	return flashes, nil
}

// Notify lets a session act as the notice surface of a confirmer.
func (s *Session) Notify(ctx context.Context, message string) error {
	return s.AddFlash(ctx, message)
}

func (s *Session) flashes(ctx context.Context) ([]string, error) {
	raw, found, err := s.Get(ctx, flashKey)
	if err != nil || !found {
		return nil, err
	}
	var flashes []string
	if err := json.Unmarshal(raw, &flashes); err != nil {
		// a corrupt flash list is dropped rather than blocking the page
		return nil, nil
	}
	return flashes, nil
}
