// Package ws pushes redraw hints to every open page of a session, so tabs
// other than the one that submitted a confirmation pick up the change.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsPingPeriod = 15 * time.Second
	wsPongWait   = 45 * time.Second
	wsWriteWait  = 5 * time.Second
)

// Hint tells a page which fragments of a dialog are stale.
type Hint struct {
	Type      string   `json:"type"`
	Dialog    string   `json:"dialog"`
	Fragments []string `json:"fragments,omitempty"`
}

func RedrawHint(dialog string, fragments []string) Hint {
	return Hint{Type: "redraw", Dialog: dialog, Fragments: fragments}
}

type connWrap struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *connWrap) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	err := c.conn.WriteMessage(messageType, data)
	_ = c.conn.SetWriteDeadline(time.Time{})
	return err
}

// SessionResolver names the session a websocket request belongs to.
type SessionResolver func(r *http.Request) (string, bool)

type Server struct {
	resolve  SessionResolver
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]map[*connWrap]struct{}
}

func NewServer(resolve SessionResolver, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		resolve: resolve,
		log:     log.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
		sessions: make(map[string]map[*connWrap]struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.resolve(r)
	if !ok || sessionID == "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	cw := &connWrap{conn: conn}
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	done := make(chan struct{})
	go startKeepalive(cw, done)

	s.add(sessionID, cw)
	defer func() {
		close(done)
		s.remove(sessionID, cw)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish sends hint to every connection of the session. Failed connections
// are closed; their read loop then unregisters them.
func (s *Server) Publish(sessionID string, hint Hint) {
	s.mu.RLock()
	conns := make([]*connWrap, 0, len(s.sessions[sessionID]))
	for c := range s.sessions[sessionID] {
		conns = append(conns, c)
	}
	s.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	payload, err := json.Marshal(hint)
	if err != nil {
		s.log.Warn("encode hint", zap.Error(err))
		return
	}
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, payload); err != nil {
			s.log.Debug("websocket publish failed", zap.Error(err))
			_ = c.conn.Close()
		}
	}
}

// Connections counts open connections of a session.
func (s *Server) Connections(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID])
}

// Close drops every connection.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conns := range s.sessions {
		for c := range conns {
			_ = c.conn.Close()
		}
		delete(s.sessions, id)
	}
}

func (s *Server) add(sessionID string, cw *connWrap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns, ok := s.sessions[sessionID]
	if !ok {
		conns = make(map[*connWrap]struct{})
		s.sessions[sessionID] = conns
	}
	conns[cw] = struct{}{}
}

func (s *Server) remove(sessionID string, cw *connWrap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := s.sessions[sessionID]
	delete(conns, cw)
	if len(conns) == 0 {
		delete(s.sessions, sessionID)
	}
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func startKeepalive(cw *connWrap, done <-chan struct{}) {
	if cw == nil || cw.conn == nil {
		return
	}
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := cw.write(websocket.PingMessage, nil); err != nil {
				_ = cw.conn.Close()
				return
			}
		}
	}
}
