// Package errs defines the error taxonomy shared by every layer of dCtl.
//
// All errors returned by the config store, the RPC layer and the services are
// (or wrap) an *errs.Error. The Code survives the wire, so a client receives the
// same classification the handler produced:
//
//	VALIDATION             malformed RPC parameters or documents
//	AUTH                   missing/insufficient scope or invalid token
//	NOT_READY              config store initial load incomplete
//	CONFLICT               optimistic concurrency failure (retryable)
//	NOT_FOUND              referenced entity absent
//	RESOURCE_LIMIT         tenant count cap exceeded
//	EXTERNAL_DEPENDENCY    license server unreachable or non-success response
//	FATAL_PARTIAL_FAILURE  post-commit provisioning step failed, state is kept
//
// Usage:
//
//	if errors.Is(err, errs.ErrConflict) {
//		// reload and retry
//	}
//	return errs.New(errs.NotFound, "system.add_role", "no account with email %s", email)
package errs
