// Package render turns dialogs and confirmation prompts into HTML.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"confirm-dialog/internal/confirm"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Trigger is a button that shows a confirmer with fixed params.
type Trigger struct {
	Confirmer string
	Label     string
	Params    map[string]string
	UseAjax   bool
}

type DialogView struct {
	Name     string
	Fragment string
	Prompt   *confirm.Prompt
	Triggers []Trigger
}

type PageView struct {
	Title   string
	Flashes []string
	Dialogs []DialogView
}

// Renderer executes the built-in templates. Prompts naming a template file
// are rendered with that file instead; parsed files are cached by path.
type Renderer struct {
	base *template.Template
	log  *zap.Logger

	mu    sync.Mutex
	files map[string]*template.Template
}

func New(log *zap.Logger) (*Renderer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Renderer{log: log, files: make(map[string]*template.Template)}
	base, err := template.New("base").
		Funcs(template.FuncMap{"prompt": r.promptHTML}).
		ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse built-in templates")
	}
	r.base = base
	return r, nil
}

func (r *Renderer) Page(w io.Writer, v PageView) error {
	return r.base.ExecuteTemplate(w, "page", v)
}

func (r *Renderer) Dialog(w io.Writer, v DialogView) error {
	return r.base.ExecuteTemplate(w, "dialog", v)
}

func (r *Renderer) Prompt(w io.Writer, p confirm.Prompt) error {
	if strings.TrimSpace(p.TemplateFile) == "" {
		return r.base.ExecuteTemplate(w, "prompt", p)
	}
	tpl, err := r.file(p.TemplateFile)
	if err != nil {
		return err
	}
	return tpl.Execute(w, p)
}

// DialogHTML renders a dialog fragment to a string, for partial updates.
func (r *Renderer) DialogHTML(v DialogView) (string, error) {
	var buf bytes.Buffer
	if err := r.Dialog(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *Renderer) PromptHTML(p confirm.Prompt) (string, error) {
	var buf bytes.Buffer
	if err := r.Prompt(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *Renderer) promptHTML(p *confirm.Prompt) (template.HTML, error) {
	if p == nil {
		return "", nil
	}
	out, err := r.PromptHTML(*p)
	if err != nil {
		return "", err
	}
	// already escaped by the prompt template
	return template.HTML(out), nil
}

func (r *Renderer) file(path string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.files[path]; ok {
		return tpl, nil
	}
	tpl, err := template.New(filepath.Base(path)).ParseFiles(path)
	if err != nil {
		return nil, errors.Wrapf(err, "parse prompt template %s", path)
	}
	r.files[path] = tpl
	r.log.Debug("prompt template loaded", zap.String("path", path))
	return tpl, nil
}
