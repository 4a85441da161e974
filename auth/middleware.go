package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Middleware authenticates requests and checks the action each route needs.
// A nil authenticator lets every request through as AnonymousIdentity.
type Middleware struct {
	authn Authenticator
	authz Authorizer
}

// NewMiddleware creates a Middleware. A nil authz allows every authenticated
// request.
func NewMiddleware(authn Authenticator, authz Authorizer) *Middleware {
	if authz == nil {
		authz = AllowAllAuthorizer{}
	}
	return &Middleware{authn: authn, authz: authz}
}

// Enabled reports whether requests are authenticated.
func (m *Middleware) Enabled() bool { return m.authn != nil }

// Require wraps next so that it only runs for callers allowed to perform
// action. Unauthenticated callers get 401 and forbidden callers 403.
func (m *Middleware) Require(action string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if m.authn == nil {
			next(w, r.WithContext(WithIdentity(r.Context(), AnonymousIdentity())), ps)
			return
		}

		ctx := r.Context()
		result, err := m.authn.Authenticate(ctx, &AuthRequest{Headers: r.Header})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}
		if !result.Authenticated {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tagcache"`)
			writeError(w, http.StatusUnauthorized, failureMessage(result.Error))
			return
		}

		err = m.authz.Authorize(ctx, &AuthzRequest{Subject: result.Identity, Action: action, Resource: r.URL.Path})
		if err != nil {
			writeError(w, http.StatusForbidden, ErrForbidden.Error())
			return
		}
		next(w, r.WithContext(WithIdentity(ctx, result.Identity)), ps)
	}
}

// failureMessage hides verification details from the caller.
func failureMessage(err error) string {
	for _, known := range []error{ErrMissingCredentials, ErrTokenExpired, ErrTokenMalformed} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrInvalidCredentials.Error()
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
