package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/jonwraymond/tagcache/auth"
	"github.com/jonwraymond/tagcache/cache"
	"github.com/jonwraymond/tagcache/observe"
)

// maxCleanBody bounds clean request bodies.
const maxCleanBody = 1 << 20

// CleanRequest is the body of POST /v1/clean.
type CleanRequest struct {
	Mode string   `json:"mode"`
	Tags []string `json:"tags"`
}

// CleanResponse reports a clean. Removed is omitted for the all and old
// modes, which the backend performs without counting.
type CleanResponse struct {
	Mode    string `json:"mode"`
	Removed *int   `json:"removed,omitempty"`
}

func (s *Server) clean(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req CleanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCleanBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid clean request: "+err.Error())
		return
	}
	if req.Mode == "" {
		writeError(w, http.StatusBadRequest, "invalid clean request: mode is required")
		return
	}
	mode, err := cache.ParseCleanMode(req.Mode)
	if err != nil {
		s.fail(w, r, "clean", err)
		return
	}

	resp := CleanResponse{Mode: mode.String()}
	switch mode {
	case cache.CleanMatchingTag, cache.CleanNotMatchingTag:
		n, err := s.store.Sweep(r.Context(), mode, req.Tags)
		if err != nil {
			s.fail(w, r, "clean", err)
			return
		}
		resp.Removed = &n
		s.log.Info(r.Context(), "tag sweep",
			observe.Field{Key: "request_id", Value: RequestIDFromContext(r.Context())},
			observe.Field{Key: "principal", Value: auth.PrincipalFromContext(r.Context())},
			observe.Field{Key: "cache.mode", Value: mode.String()},
			observe.Field{Key: "removed", Value: n},
		)
	default:
		if err := s.store.Clean(r.Context(), mode, req.Tags); err != nil {
			s.fail(w, r, "clean", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReconcileResponse reports a reconcile run.
type ReconcileResponse struct {
	Removed int `json:"removed"`
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	n, err := s.store.Reconcile(r.Context())
	if err != nil {
		s.fail(w, r, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileResponse{Removed: n})
}
