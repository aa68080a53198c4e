// Package model defines the configuration documents of the control plane:
// systems, pools, tiers, tiering policies, buckets, accounts, roles and
// cluster members.
//
// Every document implements Document. Besides its JSON shape a document knows
// how to validate itself in isolation (Validate), which other documents it
// points to (Refs) and which index keys it claims (UniqueKeys). The config
// store uses these three to check a batch against the rest of the data, so
// the rules for "bucket names are unique per system" or "a bucket must point
// at an existing tiering policy" live next to the type they belong to.
//
// Updates are JSON merge patches (see Merge). Decode rejects unknown fields.
package model
