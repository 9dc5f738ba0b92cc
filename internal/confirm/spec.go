package confirm

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// Handler performs the guarded action. owner is the dialog hosting the
// confirmer. It runs at most once per issued token.
type Handler func(ctx context.Context, owner Host, params Params) error

// Spec describes one guardable action.
type Spec struct {
	// Name addresses the confirmer inside its dialog.
	Name     string
	Heading  Text
	Question Text
	Icon     string
	CSSClass string
	// TemplateFile overrides the dialog's prompt template.
	TemplateFile string
	Handler      Handler
}

// IsConfigured reports whether heading, question and handler are all set.
// Only configured specs may be shown or rendered.
func (s *Spec) IsConfigured() bool {
	return s != nil && s.Heading.IsSet() && s.Question.IsSet() && s.Handler != nil
}

// Validate explains why a spec is not configured.
func (s *Spec) Validate() error {
	if s == nil {
		return errors.Wrap(ErrConfiguration, "nil spec")
	}
	var missing []string
	if !s.Heading.IsSet() {
		missing = append(missing, "heading")
	}
	if !s.Question.IsSet() {
		missing = append(missing, "question")
	}
	if s.Handler == nil {
		missing = append(missing, "handler")
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrConfiguration, "confirmer %q is missing %s", s.Name, strings.Join(missing, ", "))
	}
	return nil
}
