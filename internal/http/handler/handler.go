package handler

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"confirm-dialog/internal/confirm"
	"confirm-dialog/internal/http/middleware"
	"confirm-dialog/internal/http/response"
	"confirm-dialog/internal/render"
	"confirm-dialog/internal/session"
	"confirm-dialog/internal/ws"
)

// TriggerSource lists the buttons that show confirmers of a dialog when no
// prompt is active.
type TriggerSource interface {
	Triggers(ctx context.Context, dialog string) []render.Trigger
}

type Options struct {
	Registry *confirm.Registry
	Sessions *session.Manager
	Renderer *render.Renderer
	WS       *ws.Server
	Triggers TriggerSource
	Observer confirm.Observer
	Logger   *zap.Logger

	Title           string
	TemplateFile    string
	ExpiredNotice   string
	NoExpiredNotice bool
}

type Handler struct {
	registry *confirm.Registry
	sessions *session.Manager
	renderer *render.Renderer
	wsServer *ws.Server
	triggers TriggerSource
	observer confirm.Observer
	log      *zap.Logger

	title           string
	templateFile    string
	expiredNotice   string
	noExpiredNotice bool
}

func New(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	title := opts.Title
	if title == "" {
		title = "Confirm dialog"
	}
	return &Handler{
		registry:        opts.Registry,
		sessions:        opts.Sessions,
		renderer:        opts.Renderer,
		wsServer:        opts.WS,
		triggers:        opts.Triggers,
		observer:        opts.Observer,
		log:             log.Named("http"),
		title:           title,
		templateFile:    opts.TemplateFile,
		expiredNotice:   opts.ExpiredNotice,
		noExpiredNotice: opts.NoExpiredNotice,
	}
}

// WebSocketHandler is nil when no websocket server was configured.
func (h *Handler) WebSocketHandler() http.Handler {
	if h.wsServer == nil {
		return nil
	}
	return h.wsServer
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.page)
	mux.HandleFunc("GET /dialog/{dialog}", h.dialogFragment)
	mux.HandleFunc("POST /dialog/{dialog}/{confirmer}/show", h.show)
	mux.HandleFunc("POST /dialog/{dialog}/{confirmer}/confirm", h.confirm)
	mux.HandleFunc("POST /dialog/{dialog}/{confirmer}/cancel", h.cancel)
	mux.HandleFunc("GET /healthz", h.healthz)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, response.OKEmpty())
}

func isAjax(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

// openDialog binds a registered dialog to the caller's session.
func (h *Handler) openDialog(r *http.Request, name string, exchange confirm.Exchange) (*confirm.Dialog, *session.Session, error) {
	sess, ok := middleware.SessionFrom(r.Context())
	if !ok {
		return nil, nil, errNoSession
	}
	def, ok := h.registry.Lookup(name)
	if !ok {
		return nil, nil, errUnknownDialog
	}
	if def.TemplateFile == "" {
		def.TemplateFile = h.templateFile
	}
	d, err := confirm.NewDialog(sess, def, confirm.DialogOptions{
		Exchange:        exchange,
		Notifier:        sess,
		Observer:        h.observer,
		Logger:          h.log,
		ExpiredNotice:   h.expiredNotice,
		NoExpiredNotice: h.noExpiredNotice,
		UseAjax:         true,
	})
	if err != nil {
		return nil, nil, err
	}
	return d, sess, nil
}

func (h *Handler) dialogView(ctx context.Context, d *confirm.Dialog) (render.DialogView, error) {
	prompt, err := d.Active(ctx)
	if err != nil {
		return render.DialogView{}, err
	}
	view := render.DialogView{Name: d.Name(), Fragment: d.Fragment(), Prompt: prompt}
	if prompt == nil && h.triggers != nil {
		view.Triggers = h.triggers.Triggers(ctx, d.Name())
	}
	return view, nil
}
