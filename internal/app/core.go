package app

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"confirm-dialog/internal/audit"
	"confirm-dialog/internal/config"
	"confirm-dialog/internal/confirm"
	"confirm-dialog/internal/demo"
	"confirm-dialog/internal/metrics"
	"confirm-dialog/internal/session"
	"confirm-dialog/internal/store/sqlite"
)

// Core is what both the web server and the MCP server need: the session
// store, the registered dialogs and the transition observers.
type Core struct {
	Backend  session.Backend
	Sessions *session.Manager
	Dialogs  *confirm.Registry
	Demo     *demo.Demo
	Metrics  *metrics.Collector
	Audit    *audit.Logger
}

// NewCore opens the configured session backend and registers the dialogs.
func NewCore(ctx context.Context, cfg config.Config, log *zap.Logger) (*Core, error) {
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reg := confirm.NewRegistry()
	d := demo.New(demo.NewInventory("quarterly-report.pdf", "meeting-notes.txt", "budget.xlsx"), log)
	if err := d.Register(reg); err != nil {
		_ = backend.Close()
		return nil, errors.Wrap(err, "register dialogs")
	}
	if cfg.TemplateFile != "" {
		log.Info("default prompt template", zap.String("path", cfg.TemplateFile))
	}

	return &Core{
		Backend: backend,
		Sessions: session.NewManager(backend, session.Options{
			CookieName: cfg.SessionCookie,
			TTL:        cfg.SessionTTL,
			Secure:     cfg.SecureCookie,
		}),
		Dialogs: reg,
		Demo:    d,
		Metrics: metrics.NewCollector(),
		Audit:   audit.NewLogger(cfg.MCP.AuditEnabled, log),
	}, nil
}

// Observer fans transitions out to metrics and the audit log.
func (c *Core) Observer() confirm.Observer {
	return confirm.Observers(c.Metrics, c.Audit)
}

func (c *Core) Close() error {
	return c.Backend.Close()
}

func OpenBackend(ctx context.Context, cfg config.Config) (session.Backend, error) {
	switch cfg.SessionBackend {
	case "", "memory":
		return session.NewMemoryBackend(cfg.SessionTTL), nil
	case "redis":
		b, err := session.NewRedisBackend(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return nil, errors.Wrap(err, "open redis session backend")
		}
		return b, nil
	case "sqlite":
		repo, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		return session.NewSQLBackend(repo, cfg.SessionTTL), nil
	case "postgres":
		repo, err := sqlite.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres")
		}
		return session.NewSQLBackend(repo, cfg.SessionTTL), nil
	default:
		return nil, errors.Newf("unsupported SESSION_BACKEND %q", cfg.SessionBackend)
	}
}
