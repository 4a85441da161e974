package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/tagcache/auth"
	"github.com/jonwraymond/tagcache/cache"
	"github.com/jonwraymond/tagcache/observe"
	"github.com/jonwraymond/tagcache/tagcache"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error     string   `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
	Removed   *int     `json:"removed,omitempty"`
	Failed    []string `json:"failed_keys,omitempty"`
}

// statusFor maps cache errors to response codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cache.ErrInvalidKey),
		errors.Is(err, cache.ErrKeyTooLong),
		errors.Is(err, cache.ErrUnsupportedCleanMode):
		return http.StatusBadRequest
	case errors.Is(err, tagcache.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, tagcache.ErrBackendUnavailable),
		errors.Is(err, tagcache.ErrIndexUnavailable),
		errors.Is(err, tagcache.ErrClosed),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status it maps to. Server side failures are
// logged with the request ID.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusFor(err)
	id := RequestIDFromContext(r.Context())
	if code >= http.StatusInternalServerError {
		s.log.Warn(r.Context(), "request failed",
			observe.Field{Key: "request_id", Value: id},
			observe.Field{Key: "op", Value: op},
			observe.Field{Key: "principal", Value: auth.PrincipalFromContext(r.Context())},
			observe.Field{Key: "status", Value: code},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}

	body := ErrorResponse{Error: err.Error(), RequestID: id}
	var sweepErr *tagcache.SweepError
	if errors.As(err, &sweepErr) {
		removed := sweepErr.Resolved - len(sweepErr.Failures)
		body.Removed = &removed
		body.Failed = sweepErr.Keys()
	}
	writeJSON(w, code, body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
