// Package auth implements the session tokens of the rpc layer.
//
// A token is an HS256 JWT carrying the account, the system it is scoped to,
// the role on that system and the support flag. Every rpc method declares a
// Requirement; the server verifies the token and checks the requirement
// before the handler runs, failures are errs.Auth. Handlers read the caller
// from the context with FromContext.
package auth
