// Package httpx holds the JSON request and response helpers shared by every handler.
package httpx

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strings"
	"unicode"

	"github.com/lmdhub/api/internal/platform/requestctx"
)

// Error is the JSON error envelope. It satisfies error so handlers can pass it around.
type Error struct {
	Code    string
	Message string
	Status  int
	// Details are merged into the top level of the envelope. They never replace the
	// error, message, status, request_id or trace_id keys.
	Details map[string]any
}

// NewError builds an envelope. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: oneLine(code, 80), Message: oneLine(message, 512), Status: status}
}

// WithDetails returns a copy of e carrying details.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) > 0 {
		e.Details = maps.Clone(details)
	}
	return e
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// WriteError writes e with the request and trace ids taken from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	body := maps.Clone(e.Details)
	if body == nil {
		body = make(map[string]any, 5)
	}
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = e.Status
	delete(body, "request_id")
	delete(body, "trace_id")
	if id := oneLine(requestctx.RequestID(ctx), 80); id != "" {
		body["request_id"] = id
	}
	if id := oneLine(requestctx.TraceID(ctx), 64); id != "" {
		body["trace_id"] = id
	}
	WriteJSON(w, e.Status, body)
}

// oneLine folds whitespace runs (newlines included) into single spaces, drops other control
// characters and truncates to limit runes.
func oneLine(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(value); len(runes) > limit {
		value = string(runes[:limit])
	}
	return value
}

// WriteJSON encodes payload with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
