// Package response holds the JSON envelope returned to asynchronous clients.
package response

import (
	"encoding/json"
	"net/http"
)

// R is the envelope: Code 0 means success, anything else carries Msg.
type R struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func OK(data any) R {
	return R{Code: 0, Msg: "ok", Data: data}
}

func OKEmpty() R {
	return R{Code: 0, Msg: "ok"}
}

func Err(code int, msg string) R {
	return R{Code: code, Msg: msg}
}

// ErrDefault is a generic failure.
func ErrDefault(msg string) R {
	return Err(-1, msg)
}

// WriteJSON always answers 200; the outcome travels in the envelope.
func WriteJSON(w http.ResponseWriter, r R) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(r)
}
