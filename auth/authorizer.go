package auth

import (
	"context"
	"fmt"
	"slices"
)

// Actions checked by the admin API.
const (
	ActionRead  = "read"  // load and test entries
	ActionWrite = "write" // save and remove entries
	ActionClean = "clean" // clean, sweep and reconcile
	ActionAll   = "*"
)

// Authorizer determines if an identity may perform an action.
type Authorizer interface {
	// Authorize returns nil if permitted, or an *AuthzError.
	Authorize(ctx context.Context, req *AuthzRequest) error
	Name() string
}

// AuthzRequest contains the information needed for authorization.
type AuthzRequest struct {
	Subject  *Identity
	Action   string
	Resource string
}

// AuthzError represents an authorization failure. It matches ErrForbidden.
type AuthzError struct {
	Subject  string
	Resource string
	Action   string
	Reason   string
}

// Error returns the error message.
func (e *AuthzError) Error() string {
	return fmt.Sprintf("authorization denied: subject=%q resource=%q action=%q reason=%q",
		e.Subject, e.Resource, e.Action, e.Reason)
}

// Is reports whether this error matches the target.
func (e *AuthzError) Is(target error) bool {
	return target == ErrForbidden
}

// AllowAllAuthorizer permits all requests.
type AllowAllAuthorizer struct{}

// Authorize always returns nil.
func (AllowAllAuthorizer) Authorize(context.Context, *AuthzRequest) error { return nil }

// Name returns "allow_all".
func (AllowAllAuthorizer) Name() string { return "allow_all" }

// RoleConfig grants actions to a role.
type RoleConfig struct {
	// Actions are granted action names, or ActionAll.
	Actions []string `yaml:"actions"`

	// Inherits lists roles whose actions this role also has.
	Inherits []string `yaml:"inherits"`
}

// RoleAuthorizer grants actions by role, following role inheritance.
type RoleAuthorizer struct {
	roles       map[string]RoleConfig
	defaultRole string
}

// NewRoleAuthorizer creates a RoleAuthorizer. Identities without roles get
// defaultRole, when set.
func NewRoleAuthorizer(roles map[string]RoleConfig, defaultRole string) *RoleAuthorizer {
	return &RoleAuthorizer{roles: roles, defaultRole: defaultRole}
}

// Name returns "role".
func (a *RoleAuthorizer) Name() string { return "role" }

// Authorize checks whether any of the subject's roles grants the action.
func (a *RoleAuthorizer) Authorize(_ context.Context, req *AuthzRequest) error {
	if req.Subject == nil {
		return &AuthzError{Resource: req.Resource, Action: req.Action, Reason: "no identity provided"}
	}

	for _, role := range a.collectRoles(req.Subject) {
		actions := a.roles[role].Actions
		if slices.Contains(actions, ActionAll) || slices.Contains(actions, req.Action) {
			return nil
		}
	}
	return &AuthzError{
		Subject:  req.Subject.Principal,
		Resource: req.Resource,
		Action:   req.Action,
		Reason:   "no role permits this action",
	}
}

// collectRoles expands the subject's roles breadth first through Inherits.
func (a *RoleAuthorizer) collectRoles(subject *Identity) []string {
	pending := slices.Clone(subject.Roles)
	if len(pending) == 0 && a.defaultRole != "" {
		pending = []string{a.defaultRole}
	}

	seen := make(map[string]bool)
	var out []string
	for len(pending) > 0 {
		role := pending[0]
		pending = pending[1:]
		if seen[role] {
			continue
		}
		seen[role] = true
		out = append(out, role)
		pending = append(pending, a.roles[role].Inherits...)
	}
	return out
}

var (
	_ Authorizer = AllowAllAuthorizer{}
	_ Authorizer = (*RoleAuthorizer)(nil)
)
