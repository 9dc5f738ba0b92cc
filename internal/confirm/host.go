package confirm

import (
	"context"
	"slices"
)

// Host is the region owning a set of confirmers, at most one of which shows
// its prompt at a time. It is passed to handlers as their owner.
type Host interface {
	Name() string
	// TemplateFile is the prompt template used when a spec has none.
	TemplateFile() string
	Activate(ctx context.Context, confirmer, token string) error
	ResetActiveConfirmer(ctx context.Context) error
	// Redraw marks the host's own fragment as changed.
	Redraw()
}

// Exchange is the current request/response as seen by a confirmer.
type Exchange interface {
	// IsAsync reports whether the client applies partial updates; when it
	// does not, a full refresh follows every confirm and cancel.
	IsAsync() bool
	Redraw(fragment string)
	Refresh()
}

// Notifier surfaces user-facing notices such as the expiry message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Observer is told about every transition a confirmer takes.
type Observer interface {
	ObserveTransition(dialog, confirmer string, outcome Outcome)
}

type Outcome string

const (
	OutcomeShown     Outcome = "shown"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return "unknown"
	}
}

// BufferedExchange records redraw and refresh requests so the caller can
// build its response once the transition has finished.
type BufferedExchange struct {
	Async bool

	fragments []string
	refreshed bool
}

func (e *BufferedExchange) IsAsync() bool {
	return e.Async
}

func (e *BufferedExchange) Redraw(fragment string) {
	if fragment == "" || slices.Contains(e.fragments, fragment) {
		return
	}
	e.fragments = append(e.fragments, fragment)
}

func (e *BufferedExchange) Refresh() {
	e.refreshed = true
}

// Fragments lists the fragments invalidated so far, in request order.
func (e *BufferedExchange) Fragments() []string {
	return slices.Clone(e.fragments)
}

func (e *BufferedExchange) Refreshed() bool {
	return e.refreshed
}

type observers []Observer

func (o observers) ObserveTransition(dialog, confirmer string, outcome Outcome) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveTransition(dialog, confirmer, outcome)
		}
	}
}

// Observers fans a transition out to several observers.
func Observers(list ...Observer) Observer {
	return observers(list)
}
