package model

import (
	"fmt"

	"github.com/ValentinKolb/dCtl/lib/objectid"
	"github.com/hashicorp/go-multierror"
)

// --------------------------------------------------------------------------
// Collections
// --------------------------------------------------------------------------

// Collection names a set of documents of the same type
type Collection string

const (
	Systems         Collection = "systems"
	Pools           Collection = "pools"
	Tiers           Collection = "tiers"
	TieringPolicies Collection = "tieringpolicies"
	Buckets         Collection = "buckets"
	Roles           Collection = "roles"
	Clusters        Collection = "clusters"
	Accounts        Collection = "accounts"
)

// AllCollections lists every collection in a fixed order
var AllCollections = []Collection{
	Systems, Pools, Tiers, TieringPolicies, Buckets, Roles, Clusters, Accounts,
}

// Valid reports whether c is a known collection
func (c Collection) Valid() bool {
	for _, known := range AllCollections {
		if c == known {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Document Interface
// --------------------------------------------------------------------------

// Ref is a reference from one document to another
type Ref struct {
	Field      string
	Collection Collection
	ID         string
}

// Document is implemented by all configuration entities.
// Documents handed out by the config store are shared and must not be modified.
type Document interface {
	// GetID returns the generated id (see objectid)
	GetID() string
	// SetID sets the id, used when a document is inserted without one
	SetID(id string)
	// Collection returns the collection the document belongs to
	Collection() Collection
	// Validate checks the document on its own, without looking at other documents
	Validate() error
	// Refs returns all ids the document points to
	Refs() []Ref
	// UniqueKeys returns index keys that must not be used by any other document.
	// They double as lookup keys for the by-name / by-email indexes.
	UniqueKeys() []string
}

// New returns an empty document for a collection
func New(coll Collection) (Document, error) {
	switch coll {
	case Systems:
		return &System{}, nil
	case Pools:
		return &Pool{}, nil
	case Tiers:
		return &Tier{}, nil
	case TieringPolicies:
		return &TieringPolicy{}, nil
	case Buckets:
		return &Bucket{}, nil
	case Roles:
		return &Role{}, nil
	case Clusters:
		return &Cluster{}, nil
	case Accounts:
		return &Account{}, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", coll)
	}
}

// --------------------------------------------------------------------------
// Index keys
// --------------------------------------------------------------------------

// SystemNameKey indexes systems by name (cluster wide)
func SystemNameKey(name string) string {
	return "systems/name/" + name
}

// ScopedNameKey indexes system scoped documents by name
func ScopedNameKey(coll Collection, system, name string) string {
	return fmt.Sprintf("%s/%s/name/%s", coll, system, name)
}

// ScopedNamePrefix is the prefix of all ScopedNameKey entries of one system
func ScopedNamePrefix(coll Collection, system string) string {
	return fmt.Sprintf("%s/%s/name/", coll, system)
}

// AccountEmailKey indexes accounts by email
func AccountEmailKey(email string) string {
	return "accounts/email/" + email
}

// ClusterSecretKey indexes cluster members by owner secret
func ClusterSecretKey(secret string) string {
	return "clusters/secret/" + secret
}

// RoleByAccountPrefix is the prefix of all role keys of an account
func RoleByAccountPrefix(account string) string {
	return "roles/account/" + account + "/"
}

// RoleBySystemPrefix is the prefix of all role keys of a system
func RoleBySystemPrefix(system string) string {
	return "roles/system/" + system + "/"
}

// --------------------------------------------------------------------------
// Validation helpers
// --------------------------------------------------------------------------

type checker struct {
	coll   Collection
	id     string
	result *multierror.Error
}

func newChecker(doc Document) *checker {
	c := &checker{coll: doc.Collection(), id: doc.GetID()}
	if !objectid.Valid(c.id) {
		c.fail("_id", "invalid id %q", c.id)
	}
	return c
}

func (c *checker) fail(field, format string, args ...interface{}) {
	c.result = multierror.Append(c.result, fmt.Errorf("%s %s: %s: %s", c.coll, c.id, field, fmt.Sprintf(format, args...)))
}

func (c *checker) required(field, value string) {
	if value == "" {
		c.fail(field, "is required")
	}
}

func (c *checker) ref(field, value string) {
	if !objectid.Valid(value) {
		c.fail(field, "invalid reference %q", value)
	}
}

func (c *checker) err() error {
	return c.result.ErrorOrNil()
}
