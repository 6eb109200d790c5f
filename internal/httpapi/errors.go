package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// Error codes carried in APIError. Clients switch on these, not on messages.
const (
	codeInvalidJSON     = "invalid_json"
	codeInvalidConfig   = "invalid_config"
	codeUnknownEmployer = "unknown_employer"
	codeAlreadyRunning  = "already_running"
	codeDBError         = "db_error"
	codeTimeout         = "timeout"
	codeForbidden       = "forbidden"
)

type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError answers with the error envelope, tagged with the request id.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.RequestID = RequestIDFrom(r.Context())
	WriteJSON(w, status, e)
}

// writeStoreError answers a failed catalog query. A query cut short by the
// request deadline is 503 so pollers retry; anything else is a 500.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		WriteError(w, r, http.StatusServiceUnavailable, codeTimeout, "catalog query did not finish: "+err.Error())
		return
	}
	WriteError(w, r, http.StatusInternalServerError, codeDBError, err.Error())
}
