// Package objectid generates the document ids used by the config store.
//
// An id is 12 bytes rendered as 24 hex chars: 4 bytes unix seconds, 5 bytes
// identifying the generating process and a 3 byte counter. Ids are therefore
// roughly time ordered, unique across processes without coordination, and can
// be created before a document is committed so one batch may reference
// documents it inserts itself.
package objectid
