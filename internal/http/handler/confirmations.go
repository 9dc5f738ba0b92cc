package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"confirm-dialog/internal/confirm"
	"confirm-dialog/internal/http/response"
	"confirm-dialog/internal/ws"
)

const tokenField = "secureToken"

var (
	errNoSession     = errors.New("request has no session")
	errUnknownDialog = errors.New("unknown dialog")
)

type transitionResult struct {
	Outcome  confirm.Outcome   `json:"outcome,omitempty"`
	Snippets map[string]string `json:"snippets"`
	Flashes  []string          `json:"flashes,omitempty"`
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, http.StatusBadRequest, errors.Wrap(err, "parse form"))
		return
	}
	params := formParams(r)
	h.transition(w, r, func(d *confirm.Dialog, name string) (confirm.Outcome, error) {
		if _, err := d.Show(r.Context(), name, params); err != nil {
			return "", err
		}
		return confirm.OutcomeShown, nil
	})
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	tok := r.PostFormValue(tokenField)
	h.transition(w, r, func(d *confirm.Dialog, name string) (confirm.Outcome, error) {
		return d.Confirm(r.Context(), name, tok)
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	tok := r.PostFormValue(tokenField)
	h.transition(w, r, func(d *confirm.Dialog, name string) (confirm.Outcome, error) {
		return d.Cancel(r.Context(), name, tok)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, run func(*confirm.Dialog, string) (confirm.Outcome, error)) {
	dialogName := r.PathValue("dialog")
	confirmerName := r.PathValue("confirmer")

	exchange := &confirm.BufferedExchange{Async: isAjax(r)}
	d, sess, err := h.openDialog(r, dialogName, exchange)
	if err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}
	if _, err := d.Confirmer(confirmerName); err != nil {
		h.fail(w, r, http.StatusNotFound, err)
		return
	}

	outcome, err := run(d, confirmerName)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	if sess.Destroyed() {
		// a guarded action ended the session; drop the cookie with it
		if err := h.sessions.Destroy(r.Context(), w, sess); err != nil {
			h.log.Warn("expire session cookie", zap.Error(err))
		}
	}

	if h.wsServer != nil && len(exchange.Fragments()) > 0 {
		h.wsServer.Publish(sess.ID(), ws.RedrawHint(d.Name(), exchange.Fragments()))
	}

	if !exchange.IsAsync() {
		// a full page reload picks up prompts and flashes from the session
		http.Redirect(w, r, redirectTarget(r), http.StatusSeeOther)
		return
	}

	result := transitionResult{Outcome: outcome, Snippets: make(map[string]string)}
	if err := h.fillSnippets(r, d, exchange.Fragments(), result.Snippets); err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	flashes, err := sess.PopFlashes(r.Context())
	if err != nil {
		h.log.Warn("pop flashes", zap.Error(err))
	}
	result.Flashes = flashes
	response.WriteJSON(w, response.OK(result))
}

// fillSnippets renders every invalidated fragment that still exists. The
// dialog fragment already contains the prompt, so a confirmer fragment is
// only rendered on its own when it is the active prompt.
func (h *Handler) fillSnippets(r *http.Request, d *confirm.Dialog, fragments []string, out map[string]string) error {
	view, err := h.dialogView(r.Context(), d)
	if err != nil {
		return err
	}
	for _, fragment := range fragments {
		switch {
		case fragment == d.Fragment():
			html, err := h.renderer.DialogHTML(view)
			if err != nil {
				return err
			}
			out[fragment] = html
		case view.Prompt != nil && fragment == view.Prompt.Fragment:
			html, err := h.renderer.PromptHTML(*view.Prompt)
			if err != nil {
				return err
			}
			out[fragment] = html
		}
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		h.log.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	if isAjax(r) {
		response.WriteJSON(w, response.Err(status, msg))
		return
	}
	http.Error(w, msg, status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnknownDialog):
		return http.StatusNotFound
	case errors.Is(err, errNoSession):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// formParams turns posted fields into confirmation params. Single values stay
// strings, repeated fields become string lists.
func formParams(r *http.Request) confirm.Params {
	params := confirm.Params{}
	for key, values := range r.PostForm {
		if key == tokenField || len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			params[key] = values[0]
			continue
		}
		params[key] = append([]string(nil), values...)
	}
	return params
}

// redirectTarget returns to the submitting page when it is on this site.
// Anything a browser could read as another host falls back to "/".
func redirectTarget(r *http.Request) string {
	ref := r.Referer()
	if ref == "" {
		return "/"
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host != r.Host {
		return "/"
	}
	target := u.RequestURI()
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
