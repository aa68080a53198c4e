// Package boltdb implements db.KVDB on a single go.etcd.io/bbolt file.
//
// Keys live in the "kv" bucket, the write index in the "meta" bucket, so the
// index survives restarts together with the data. Apply runs all ops inside
// one bolt read-write transaction, which gives the atomic batch guarantee the
// config store relies on.
package boltdb
