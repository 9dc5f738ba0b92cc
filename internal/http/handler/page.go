package handler

import (
	"bytes"
	"net/http"

	"go.uber.org/zap"

	"confirm-dialog/internal/confirm"
	"confirm-dialog/internal/http/middleware"
	"confirm-dialog/internal/render"
)

func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFrom(r.Context())
	if !ok {
		h.fail(w, r, http.StatusUnauthorized, errNoSession)
		return
	}

	view := render.PageView{Title: h.title}
	for _, def := range h.registry.Definitions() {
		d, _, err := h.openDialog(r, def.Name, &confirm.BufferedExchange{})
		if err != nil {
			h.fail(w, r, statusFor(err), err)
			return
		}
		dv, err := h.dialogView(r.Context(), d)
		if err != nil {
			h.fail(w, r, http.StatusInternalServerError, err)
			return
		}
		view.Dialogs = append(view.Dialogs, dv)
	}

	flashes, err := sess.PopFlashes(r.Context())
	if err != nil {
		h.log.Warn("pop flashes", zap.Error(err))
	}
	view.Flashes = flashes

	var buf bytes.Buffer
	if err := h.renderer.Page(&buf, view); err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (h *Handler) dialogFragment(w http.ResponseWriter, r *http.Request) {
	d, _, err := h.openDialog(r, r.PathValue("dialog"), &confirm.BufferedExchange{})
	if err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}
	view, err := h.dialogView(r.Context(), d)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	var buf bytes.Buffer
	if err := h.renderer.Dialog(&buf, view); err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
