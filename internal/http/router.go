// Package httpserver assembles the HTTP routes and middleware of confirmd.
package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"confirm-dialog/internal/http/handler"
	"confirm-dialog/internal/http/middleware"
	"confirm-dialog/internal/session"
)

type RouterOptions struct {
	Sessions *session.Manager
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
}

func NewRouter(h *handler.Handler, opts RouterOptions) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	mux := http.NewServeMux()
	h.Register(mux)
	if ws := h.WebSocketHandler(); ws != nil {
		mux.Handle("GET /ws", ws)
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	return middleware.Chain(mux,
		middleware.RequestLog(log),
		middleware.Recover(log),
		middleware.Session(opts.Sessions),
	)
}
