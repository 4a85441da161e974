package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

func entryKey(ps httprouter.Params) string {
	return strings.TrimPrefix(ps.ByName("key"), "/")
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key := entryKey(ps)
	skip, _ := strconv.ParseBool(r.URL.Query().Get("skip_validity"))

	data, ok, err := s.store.Load(r.Context(), key, skip)
	if err != nil {
		s.fail(w, r, "load", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	if modified, ok, err := s.store.Test(r.Context(), key); err == nil && ok {
		w.Header().Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) headEntry(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	modified, ok, err := s.store.Test(r.Context(), entryKey(ps))
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) putEntry(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	query := r.URL.Query()
	var ttl time.Duration
	if raw := query.Get("ttl"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ttl %q", raw))
			return
		}
		ttl = d
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	if err := s.store.Save(r.Context(), entryKey(ps), data, query["tag"], ttl); err != nil {
		s.fail(w, r, "save", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.store.Remove(r.Context(), entryKey(ps)); err != nil {
		s.fail(w, r, "remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
