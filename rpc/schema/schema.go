package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

// Schema is a compiled JSON schema
type Schema struct {
	id     string
	schema *jsonschema.Schema
}

// Compile compiles source (draft 2020-12). id names the schema in errors.
func Compile(id, source string) (*Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := "mem://" + id + ".json"
	if err := c.AddResource(url, strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("schema %s: %w", id, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", id, err)
	}
	return &Schema{id: id, schema: s}, nil
}

// MustCompile is Compile for static schemas, it panics on error
func MustCompile(id, source string) *Schema {
	s, err := Compile(id, source)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a JSON document against the schema. Empty input is
// treated as an empty object. Violations are returned as VALIDATION errors
// listing every failing location.
func (s *Schema) Validate(raw []byte) error {
	if s == nil {
		return nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return errs.New(errs.Validation, s.id, "malformed json: %v", err)
	}

	if err := s.schema.Validate(doc); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return errs.New(errs.Validation, s.id, "%s", describe(ve))
		}
		return errs.Wrap(errs.Validation, s.id, err)
	}
	return nil
}

// describe flattens the leaf causes of a validation error into one line
func describe(ve *jsonschema.ValidationError) string {
	var leaves []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			leaves = append(leaves, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(leaves)
	return strings.Join(leaves, "; ")
}

// --------------------------------------------------------------------------
// Catalog
// --------------------------------------------------------------------------

// Method holds the compiled schemas of one rpc method
type Method struct {
	Params *Schema
	Reply  *Schema
}

// Catalog maps "service.method" to its schemas. Servers validate incoming
// params and outgoing replies with it, clients validate params before a
// call leaves the process.
type Catalog struct {
	methods *xsync.MapOf[string, Method]
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{methods: xsync.NewMapOf[string, Method]()}
}

func key(service, method string) string {
	return service + "." + method
}

// Add compiles and registers the schemas of service.method. An empty
// source means the side is not validated.
func (c *Catalog) Add(service, method, params, reply string) error {
	var m Method
	var err error
	if params != "" {
		if m.Params, err = Compile(key(service, method)+".params", params); err != nil {
			return err
		}
	}
	if reply != "" {
		if m.Reply, err = Compile(key(service, method)+".reply", reply); err != nil {
			return err
		}
	}
	c.methods.Store(key(service, method), m)
	return nil
}

// Lookup returns the schemas of service.method
func (c *Catalog) Lookup(service, method string) (Method, bool) {
	return c.methods.Load(key(service, method))
}

// ValidateParams validates raw against the params schema of service.method.
// Unknown methods are not an error here, dispatch reports them.
func (c *Catalog) ValidateParams(service, method string, raw []byte) error {
	m, ok := c.Lookup(service, method)
	if !ok {
		return nil
	}
	return m.Params.Validate(raw)
}
