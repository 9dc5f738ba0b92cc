package confirm

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"confirm-dialog/internal/token"
)

// Definition is the request-independent shape of a dialog: its name, the
// default prompt template and the confirmers it hosts.
type Definition struct {
	Name         string
	TemplateFile string
	Specs        []*Spec
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.Wrap(ErrConfiguration, "dialog without name")
	}
	seen := make(map[string]struct{}, len(d.Specs))
	for _, spec := range d.Specs {
		if err := spec.Validate(); err != nil {
			return errors.Wrapf(err, "dialog %q", d.Name)
		}
		if _, dup := seen[spec.Name]; dup {
			return errors.Wrapf(ErrConfiguration, "dialog %q: duplicate confirmer %q", d.Name, spec.Name)
		}
		seen[spec.Name] = struct{}{}
	}
	return nil
}

// Registry holds the dialog definitions known to the process.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists {
		return errors.Wrapf(ErrConfiguration, "dialog %q registered twice", def.Name)
	}
	def.Specs = slices.Clone(def.Specs)
	r.defs[def.Name] = def
	return nil
}

func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Definitions lists every registered dialog ordered by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Open binds the named dialog to one session for the current request.
func (r *Registry) Open(name string, storage SessionStorage, opts DialogOptions) (*Dialog, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return nil, errors.Wrapf(ErrConfiguration, "unknown dialog %q", name)
	}
	return NewDialog(storage, def, opts)
}

// DialogOptions carries the per-request collaborators shared by all
// confirmers of a dialog.
type DialogOptions struct {
	Exchange Exchange
	Notifier Notifier
	Observer Observer
	Logger   *zap.Logger
	Tokens   token.Source
	// ExpiredNotice overrides DefaultExpiredNotice.
	ExpiredNotice   string
	NoExpiredNotice bool
	UseAjax         bool
}

type activeConfirmer struct {
	Confirmer string `json:"confirmer"`
	Token     string `json:"token"`
}

// Dialog hosts named confirmers for one session. It remembers which of them
// shows its prompt so the prompt survives a full page reload.
type Dialog struct {
	name         string
	templateFile string
	storage      SessionStorage
	store        *Store
	opts         DialogOptions
	log          *zap.Logger

	confirmers map[string]*Confirmer
	order      []string
}

func NewDialog(storage SessionStorage, def Definition, opts DialogOptions) (*Dialog, error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, errors.Wrap(ErrConfiguration, "dialog without name")
	}
	if storage == nil {
		return nil, errors.Wrapf(ErrAttachment, "dialog %q has no session", def.Name)
	}
	if opts.Exchange == nil {
		opts.Exchange = &BufferedExchange{Async: opts.UseAjax}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	d := &Dialog{
		name:         def.Name,
		templateFile: def.TemplateFile,
		storage:      storage,
		store:        NewStore(storage),
		opts:         opts,
		log:          opts.Logger,
		confirmers:   make(map[string]*Confirmer, len(def.Specs)),
	}
	for _, spec := range def.Specs {
		if _, err := d.Add(spec); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Add attaches a configured spec under its name.
func (d *Dialog) Add(spec *Spec) (*Confirmer, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.Name) == "" {
		return nil, errors.Wrapf(ErrConfiguration, "dialog %q: confirmer without name", d.name)
	}
	if _, exists := d.confirmers[spec.Name]; exists {
		return nil, errors.Wrapf(ErrConfiguration, "dialog %q: duplicate confirmer %q", d.name, spec.Name)
	}

	opts := []Option{
		WithTokenSource(d.opts.Tokens),
		WithNotifier(d.opts.Notifier),
		WithObserver(d.opts.Observer),
		WithLogger(d.opts.Logger),
		WithAjax(d.opts.UseAjax),
	}
	switch {
	case d.opts.NoExpiredNotice:
		opts = append(opts, WithExpiredNotice(""))
	case d.opts.ExpiredNotice != "":
		opts = append(opts, WithExpiredNotice(d.opts.ExpiredNotice))
	}

	c, err := NewConfirmer(spec, d, d.store, d.opts.Exchange, opts...)
	if err != nil {
		return nil, err
	}
	d.confirmers[spec.Name] = c
	d.order = append(d.order, spec.Name)
	return c, nil
}

func (d *Dialog) Confirmer(name string) (*Confirmer, error) {
	c, ok := d.confirmers[name]
	if !ok {
		return nil, errors.Wrapf(ErrConfiguration, "dialog %q has no confirmer %q", d.name, name)
	}
	return c, nil
}

// Names lists confirmers in the order they were added.
func (d *Dialog) Names() []string {
	return slices.Clone(d.order)
}

func (d *Dialog) Show(ctx context.Context, name string, params Params) (string, error) {
	c, err := d.Confirmer(name)
	if err != nil {
		return "", err
	}
	return c.Show(ctx, params)
}

func (d *Dialog) Confirm(ctx context.Context, name, submitted string) (Outcome, error) {
	c, err := d.Confirmer(name)
	if err != nil {
		return "", err
	}
	return c.Confirm(ctx, submitted)
}

func (d *Dialog) Cancel(ctx context.Context, name, submitted string) (Outcome, error) {
	c, err := d.Confirmer(name)
	if err != nil {
		return "", err
	}
	return c.Cancel(ctx, submitted)
}

// Active returns the prompt of the confirmer currently shown, or nil. Active
// state whose pending record is gone is reset on the way.
func (d *Dialog) Active(ctx context.Context) (*Prompt, error) {
	raw, found, err := d.storage.Get(ctx, d.activeKey())
	if err != nil {
		return nil, errors.Wrap(err, "load active confirmer")
	}
	if !found {
		return nil, nil
	}

	var active activeConfirmer
	if err := json.Unmarshal(raw, &active); err != nil {
		d.log.Warn("dropping unreadable active confirmer", zap.String("dialog", d.name), zap.Error(err))
		return nil, d.ResetActiveConfirmer(ctx)
	}
	c, ok := d.confirmers[active.Confirmer]
	if !ok {
		return nil, d.ResetActiveConfirmer(ctx)
	}
	if err := c.resume(ctx, active.Token); err != nil {
		if !errors.Is(err, ErrInvalidState) {
			return nil, err
		}
		return nil, d.ResetActiveConfirmer(ctx)
	}

	p, err := c.Prompt()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Fragment names the dialog's redrawable region.
func (d *Dialog) Fragment() string {
	return "dialog-" + d.name
}

func (d *Dialog) Exchange() Exchange {
	return d.opts.Exchange
}

func (d *Dialog) Name() string {
	return d.name
}

func (d *Dialog) TemplateFile() string {
	return d.templateFile
}

func (d *Dialog) Activate(ctx context.Context, confirmer, tok string) error {
	raw, err := json.Marshal(activeConfirmer{Confirmer: confirmer, Token: tok})
	if err != nil {
		return errors.Wrap(err, "encode active confirmer")
	}
	return d.storage.Put(ctx, d.activeKey(), raw)
}

// ResetActiveConfirmer hides whatever prompt is shown and redraws the dialog.
func (d *Dialog) ResetActiveConfirmer(ctx context.Context) error {
	if err := d.storage.Delete(ctx, d.activeKey()); err != nil {
		return errors.Wrap(err, "drop active confirmer")
	}
	d.Redraw()
	return nil
}

func (d *Dialog) Redraw() {
	d.opts.Exchange.Redraw(d.Fragment())
}

func (d *Dialog) activeKey() string {
	return "dialog:" + d.name + ":active"
}
