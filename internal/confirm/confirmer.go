// Package confirm implements the confirm-this-action handshake: a confirmer
// shows a question bound to a single-use token kept in the user's session,
// and only a matching confirm submission runs the guarded handler.
//
// A Confirmer lives for one request. Its durable state is the pending record
// in the session store, so a confirm arriving in a later request is
// recognised purely by its token.
package confirm

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"confirm-dialog/internal/token"
)

// DefaultExpiredNotice is flashed when a confirm arrives for a token that no
// longer has a pending record.
const DefaultExpiredNotice = "Confirmation token has expired, please try action again."

// Prompt is everything a template needs to render a confirmation prompt.
type Prompt struct {
	Dialog       string
	Name         string
	Fragment     string
	CSSClass     string
	Icon         string
	Heading      string
	Question     string
	Token        string
	UseAjax      bool
	TemplateFile string
}

type Option func(*Confirmer)

func WithTokenSource(src token.Source) Option {
	return func(c *Confirmer) {
		if src != nil {
			c.tokens = src
		}
	}
}

// WithNotifier sets where the expiry notice goes. Without one the notice is
// skipped.
func WithNotifier(n Notifier) Option {
	return func(c *Confirmer) { c.notifier = n }
}

func WithObserver(o Observer) Option {
	return func(c *Confirmer) { c.observer = o }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Confirmer) {
		if log != nil {
			c.log = log
		}
	}
}

// WithExpiredNotice replaces the expiry message; an empty message disables
// the notice.
func WithExpiredNotice(msg string) Option {
	return func(c *Confirmer) { c.expiredNotice = msg }
}

// WithAjax marks prompts as submitted asynchronously.
func WithAjax(enabled bool) Option {
	return func(c *Confirmer) { c.useAjax = enabled }
}

type Confirmer struct {
	spec     *Spec
	host     Host
	store    *Store
	exchange Exchange

	tokens        token.Source
	notifier      Notifier
	observer      Observer
	log           *zap.Logger
	expiredNotice string
	useAjax       bool

	state  State
	token  string
	params Params
}

// NewConfirmer attaches spec to host. The spec may still be unconfigured;
// Show and Prompt refuse to run until it is.
func NewConfirmer(spec *Spec, host Host, store *Store, exchange Exchange, opts ...Option) (*Confirmer, error) {
	if spec == nil {
		return nil, errors.Wrap(ErrConfiguration, "nil spec")
	}
	if host == nil {
		return nil, errors.Wrapf(ErrAttachment, "confirmer %q has no host", spec.Name)
	}
	if store == nil {
		return nil, errors.Wrapf(ErrAttachment, "confirmer %q has no session store", spec.Name)
	}
	if exchange == nil {
		return nil, errors.Wrapf(ErrAttachment, "confirmer %q has no exchange", spec.Name)
	}

	c := &Confirmer{
		spec:          spec,
		host:          host,
		store:         store,
		exchange:      exchange,
		tokens:        token.Generate,
		log:           zap.NewNop(),
		expiredNotice: DefaultExpiredNotice,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.String("dialog", host.Name()), zap.String("confirmer", spec.Name))
	return c, nil
}

func (c *Confirmer) Name() string {
	return c.spec.Name
}

func (c *Confirmer) Spec() *Spec {
	return c.spec
}

func (c *Confirmer) State() State {
	return c.state
}

// Token is the outstanding token while awaiting confirmation.
func (c *Confirmer) Token() string {
	return c.token
}

// Fragment names the confirmer's own redrawable region.
func (c *Confirmer) Fragment() string {
	return "confirmer-" + c.host.Name() + "-" + c.spec.Name
}

// IsConfigured reports whether the underlying spec may be shown.
func (c *Confirmer) IsConfigured() bool {
	return c.spec.IsConfigured()
}

// Show issues a token, stores params under it and asks for the prompt to be
// drawn. It returns the token bound into the prompt.
func (c *Confirmer) Show(ctx context.Context, params Params) (string, error) {
	if err := c.spec.Validate(); err != nil {
		return "", err
	}

	tok := c.tokens(c.spec.Name)
	rec := PendingConfirmation{ConfirmerID: c.spec.Name, Params: params.Clone()}
	if err := c.store.Put(ctx, tok, rec); err != nil {
		return "", errors.Wrap(err, "store pending confirmation")
	}
	if err := c.host.Activate(ctx, c.spec.Name, tok); err != nil {
		return "", errors.Wrap(err, "activate confirmer")
	}

	c.state = StateAwaitingConfirmation
	c.token = tok
	c.params = rec.Params

	c.exchange.Redraw(c.Fragment())
	c.host.Redraw()

	c.observe(OutcomeShown)
	c.log.Debug("confirmation shown")
	return tok, nil
}

// Confirm runs the handler if submitted names a pending confirmation of this
// confirmer. A missing, used or foreign token folds to OutcomeExpired and is
// not an error. The record is cleared before the handler runs, so a replayed
// submission can never run it twice.
func (c *Confirmer) Confirm(ctx context.Context, submitted string) (Outcome, error) {
	defer c.refreshIfSync()

	rec, err := c.store.Get(ctx, submitted)
	if err == nil && rec.ConfirmerID != c.spec.Name {
		err = errors.Wrapf(ErrInvalidState, "token belongs to confirmer %q", rec.ConfirmerID)
	}
	if err != nil {
		if !errors.Is(err, ErrInvalidState) {
			return "", err
		}
		c.expire(ctx, err)
		return OutcomeExpired, nil
	}

	if c.spec.Handler == nil {
		return "", errors.Wrapf(ErrHandlerNotCallable, "confirmer %q", c.spec.Name)
	}

	if err := c.store.Clear(ctx, submitted); err != nil {
		return "", errors.Wrap(err, "clear pending confirmation")
	}
	c.fold()
	if err := c.host.ResetActiveConfirmer(ctx); err != nil {
		return "", errors.Wrap(err, "reset active confirmer")
	}

	c.observe(OutcomeConfirmed)
	c.log.Info("confirmation accepted")

	if err := c.spec.Handler(ctx, c.host, rec.Params); err != nil {
		return OutcomeConfirmed, errors.Wrapf(err, "confirmer %q handler", c.spec.Name)
	}
	return OutcomeConfirmed, nil
}

// Cancel drops the pending record of submitted if it belongs to this
// confirmer and always hides the active prompt. It never runs the handler and
// never reports expiry.
func (c *Confirmer) Cancel(ctx context.Context, submitted string) (Outcome, error) {
	defer c.refreshIfSync()

	rec, err := c.store.Get(ctx, submitted)
	switch {
	case err == nil && rec.ConfirmerID == c.spec.Name:
		if err := c.store.Clear(ctx, submitted); err != nil {
			return "", errors.Wrap(err, "clear pending confirmation")
		}
	case err != nil && !errors.Is(err, ErrInvalidState):
		return "", err
	}

	c.fold()
	if err := c.host.ResetActiveConfirmer(ctx); err != nil {
		return "", errors.Wrap(err, "reset active confirmer")
	}

	c.observe(OutcomeCancelled)
	c.log.Debug("confirmation cancelled")
	return OutcomeCancelled, nil
}

// Prompt builds the render model of the outstanding confirmation. Computed
// heading and question are resolved here, against the stored params.
func (c *Confirmer) Prompt() (Prompt, error) {
	if err := c.spec.Validate(); err != nil {
		return Prompt{}, err
	}
	if c.state != StateAwaitingConfirmation {
		return Prompt{}, errors.Wrapf(ErrInvalidState, "confirmer %q is not awaiting confirmation", c.spec.Name)
	}

	tpl := c.spec.TemplateFile
	if tpl == "" {
		tpl = c.host.TemplateFile()
	}
	return Prompt{
		Dialog:       c.host.Name(),
		Name:         c.spec.Name,
		Fragment:     c.Fragment(),
		CSSClass:     c.spec.CSSClass,
		Icon:         c.spec.Icon,
		Heading:      c.spec.Heading.Resolve(c.params),
		Question:     c.spec.Question.Resolve(c.params),
		Token:        c.token,
		UseAjax:      c.useAjax,
		TemplateFile: tpl,
	}, nil
}

// resume puts the confirmer back into AwaitingConfirmation for a token issued
// by an earlier request.
func (c *Confirmer) resume(ctx context.Context, tok string) error {
	rec, err := c.store.Get(ctx, tok)
	if err != nil {
		return err
	}
	if rec.ConfirmerID != c.spec.Name {
		return errors.Wrapf(ErrInvalidState, "token belongs to confirmer %q", rec.ConfirmerID)
	}
	c.state = StateAwaitingConfirmation
	c.token = tok
	c.params = rec.Params
	return nil
}

func (c *Confirmer) expire(ctx context.Context, cause error) {
	c.fold()
	// the dialog drops a stale prompt when it is drawn again
	c.host.Redraw()
	c.observe(OutcomeExpired)
	c.log.Info("confirmation expired", zap.Error(cause))

	if c.notifier == nil || c.expiredNotice == "" {
		return
	}
	if err := c.notifier.Notify(ctx, c.expiredNotice); err != nil {
		c.log.Warn("expired notice not delivered", zap.Error(err))
	}
}

func (c *Confirmer) fold() {
	c.state = StateIdle
	c.token = ""
	c.params = nil
}

func (c *Confirmer) refreshIfSync() {
	if !c.exchange.IsAsync() {
		c.exchange.Refresh()
	}
}

func (c *Confirmer) observe(outcome Outcome) {
	if c.observer != nil {
		c.observer.ObserveTransition(c.host.Name(), c.spec.Name, outcome)
	}
}
