// Package auth authenticates and authorizes callers of the tag cache admin API.
//
// Callers present either a JWT bearer token (HS256 shared secret, or an RSA or
// ECDSA public key) or an API key in the X-API-Key header. The resulting
// Identity carries roles, and a RoleAuthorizer maps roles to the actions
// read, write and clean. Middleware ties both into httprouter handlers.
package auth
