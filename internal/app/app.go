package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"confirm-dialog/internal/config"
	httpserver "confirm-dialog/internal/http"
	"confirm-dialog/internal/http/handler"
	"confirm-dialog/internal/http/middleware"
	"confirm-dialog/internal/render"
	"confirm-dialog/internal/session"
	"confirm-dialog/internal/ws"
)

type App struct {
	cfg    config.Config
	log    *zap.Logger
	core   *Core
	server *http.Server
	ws     *ws.Server

	jobsMu      sync.Mutex
	jobsCancel  context.CancelFunc
	jobsStarted bool
	jobsWG      sync.WaitGroup
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	core, err := NewCore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	renderer, err := render.New(log.Named("render"))
	if err != nil {
		_ = core.Close()
		return nil, err
	}

	wsServer := ws.NewServer(func(r *http.Request) (string, bool) {
		sess, ok := middleware.SessionFrom(r.Context())
		if !ok {
			return "", false
		}
		return sess.ID(), true
	}, log)
	h := handler.New(handler.Options{
		Registry:        core.Dialogs,
		Sessions:        core.Sessions,
		Renderer:        renderer,
		WS:              wsServer,
		Triggers:        core.Demo,
		Observer:        core.Observer(),
		Logger:          log,
		TemplateFile:    cfg.TemplateFile,
		ExpiredNotice:   cfg.ExpiredNotice,
		NoExpiredNotice: cfg.NoExpiredNotice,
	})

	routerOpts := httpserver.RouterOptions{Sessions: core.Sessions, Logger: log}
	if cfg.MetricsEnabled {
		routerOpts.Metrics = core.Metrics.Handler()
	}

	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.NewRouter(h, routerOpts),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{cfg: cfg, log: log, core: core, server: s, ws: wsServer}, nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run() error {
	a.StartBackgroundJobs()
	a.log.Info("http listening", zap.String("addr", a.cfg.Addr), zap.String("session_backend", a.cfg.SessionBackend))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.StopBackgroundJobs()
	a.ws.Close()
	shutdownErr := a.server.Shutdown(ctx)
	closeErr := a.core.Close()
	if shutdownErr != nil {
		return shutdownErr
	}
	return closeErr
}

// StartBackgroundJobs runs session housekeeping until StopBackgroundJobs.
func (a *App) StartBackgroundJobs() {
	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()
	if a.jobsStarted {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.jobsCancel = cancel
	a.jobsStarted = true

	interval := a.cfg.PurgeInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	a.jobsWG.Add(1)
	go func() {
		defer a.jobsWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.housekeeping(ctx)
			}
		}
	}()
}

func (a *App) StopBackgroundJobs() {
	a.jobsMu.Lock()
	if !a.jobsStarted {
		a.jobsMu.Unlock()
		return
	}
	a.jobsCancel()
	a.jobsStarted = false
	a.jobsMu.Unlock()
	a.jobsWG.Wait()
}

func (a *App) housekeeping(ctx context.Context) {
	switch b := a.core.Backend.(type) {
	case *session.SQLBackend:
		n, err := b.Purge(ctx)
		if err != nil {
			a.log.Warn("purge expired sessions", zap.Error(err))
			return
		}
		if n > 0 {
			a.log.Debug("purged expired session values", zap.Int64("rows", n))
		}
	case *session.MemoryBackend:
		a.core.Metrics.SetSessions(b.Len())
	}
}
