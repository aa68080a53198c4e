// Package schema validates rpc params and replies against JSON schemas.
//
// Every rpc method declares a params and a reply schema. They are compiled
// once into a Catalog shared by the server registry and the client, so
// malformed params are rejected with errs.Validation before a call leaves
// the caller and again before the handler runs.
package schema
