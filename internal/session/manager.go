package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultCookieName = "confirm_sid"

type Options struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager binds HTTP requests to sessions through a cookie carrying a random
// session id.
type Manager struct {
	backend Backend
	opts    Options
}

func NewManager(backend Backend, opts Options) *Manager {
	if strings.TrimSpace(opts.CookieName) == "" {
		opts.CookieName = DefaultCookieName
	}
	opts.TTL = normalizeTTL(opts.TTL)
	return &Manager{backend: backend, opts: opts}
}

func (m *Manager) Backend() Backend {
	return m.backend
}

// Load resumes the session named by the request cookie or starts a new one,
// and (re)issues the cookie so its lifetime follows the idle TTL.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) *Session {
	id := ""
	if c, err := r.Cookie(m.opts.CookieName); err == nil {
		if parsed, err := uuid.Parse(c.Value); err == nil {
			id = parsed.String()
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	m.writeCookie(w, id, int(m.opts.TTL/time.Second))
	return New(id, m.backend)
}

// Open returns the session with the given id without touching any cookie.
func (m *Manager) Open(id string) (*Session, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, false
	}
	return New(parsed.String(), m.backend), true
}

// Destroy ends the session and expires its cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := s.Destroy(ctx); err != nil {
		return err
	}
	m.writeCookie(w, "", -1)
	return nil
}

func (m *Manager) writeCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
