package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/stats"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/schema"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Descriptors
// --------------------------------------------------------------------------

// HandlerFunc implements one rpc method. The returned reply is JSON encoded,
// nil replies are sent as {}.
type HandlerFunc func(ctx context.Context, req *Request) (interface{}, error)

// MethodDesc binds a method name to its handler and auth requirement. The
// params and reply schemas are looked up in the registry's catalog.
type MethodDesc struct {
	Name    string
	Auth    auth.Requirement
	Handler HandlerFunc
}

// ServiceDesc describes a service, usually built by the api package from a
// typed service interface
type ServiceDesc struct {
	Name    string
	Methods []MethodDesc
}

// Request is the decoded call handed to a HandlerFunc
type Request struct {
	Service string
	Method  string
	Session *auth.Session
	Params  json.RawMessage
}

// Bind decodes the params into v
func (r *Request) Bind(v interface{}) error {
	if len(bytes.TrimSpace(r.Params)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Params))
	if err := dec.Decode(v); err != nil {
		return errs.New(errs.Validation, r.Service+"."+r.Method, "params: %v", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

type boundMethod struct {
	desc   MethodDesc
	schema schema.Method
}

// Registry hosts the services of this process. Invoke runs the full server
// side pipeline: lookup, params validation, authorization, handler, reply
// encoding.
type Registry struct {
	services  *xsync.MapOf[string, map[string]*boundMethod]
	catalog   *schema.Catalog
	authority *auth.Authority
}

// NewRegistry creates a registry validating against catalog and verifying
// tokens with authority
func NewRegistry(catalog *schema.Catalog, authority *auth.Authority) *Registry {
	return &Registry{
		services:  xsync.NewMapOf[string, map[string]*boundMethod](),
		catalog:   catalog,
		authority: authority,
	}
}

// Catalog returns the schema catalog of the registry
func (r *Registry) Catalog() *schema.Catalog {
	return r.catalog
}

// Authority returns the token authority of the registry
func (r *Registry) Authority() *auth.Authority {
	return r.authority
}

// RegisterService binds desc. Every method must have an entry in the
// catalog and a handler, a service can only be registered once.
func (r *Registry) RegisterService(desc ServiceDesc) error {
	methods := make(map[string]*boundMethod, len(desc.Methods))
	for _, m := range desc.Methods {
		if m.Handler == nil {
			return fmt.Errorf("service %s: method %s has no handler", desc.Name, m.Name)
		}
		sm, ok := r.catalog.Lookup(desc.Name, m.Name)
		if !ok {
			return fmt.Errorf("service %s: method %s has no schema", desc.Name, m.Name)
		}
		if m.Auth == "" {
			return fmt.Errorf("service %s: method %s has no auth requirement", desc.Name, m.Name)
		}
		methods[m.Name] = &boundMethod{desc: m, schema: sm}
	}
	if _, loaded := r.services.LoadOrStore(desc.Name, methods); loaded {
		return fmt.Errorf("service %s already registered", desc.Name)
	}
	log.Infof("Registered service %s with %d methods", desc.Name, len(methods))
	return nil
}

// Has reports whether service is hosted in this process
func (r *Registry) Has(service string) bool {
	_, ok := r.services.Load(service)
	return ok
}

// Invoke executes service.method with JSON params and returns the JSON reply
func (r *Registry) Invoke(ctx context.Context, service, method, token string, params []byte) (reply []byte, err error) {
	start := time.Now()
	op := service + "." + method
	defer func() {
		stats.RPCCall(service, method, start, string(errs.CodeOf(err)))
		if err != nil {
			log.Debugf("%s failed after %s: %v", op, time.Since(start), err)
		}
	}()

	methods, ok := r.services.Load(service)
	if !ok {
		return nil, errs.New(errs.NotFound, op, "unknown service %q", service)
	}
	m, ok := methods[method]
	if !ok {
		return nil, errs.New(errs.NotFound, op, "unknown method %q", method)
	}

	if err := m.schema.Params.Validate(params); err != nil {
		return nil, err
	}

	session, err := r.authority.Authorize(token, m.desc.Auth)
	if err != nil {
		return nil, err
	}
	if session != nil {
		ctx = auth.WithSession(ctx, session)
	}

	result, err := r.call(ctx, m, &Request{Service: service, Method: method, Session: session, Params: params})
	if err != nil {
		return nil, err
	}

	if result == nil {
		reply = []byte("{}")
	} else if reply, err = json.Marshal(result); err != nil {
		return nil, errs.Wrap(errs.Internal, op, err)
	} else if bytes.Equal(reply, []byte("null")) {
		// typed nil pointer
		reply = []byte("{}")
	}
	if verr := m.schema.Reply.Validate(reply); verr != nil {
		// the caller is not at fault, the reply is delivered anyway
		log.Errorf("%s: reply does not match its schema: %v", op, verr)
	}
	return reply, nil
}

func (r *Registry) call(ctx context.Context, m *boundMethod, req *Request) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("%s.%s panicked: %v\n%s", req.Service, req.Method, rec, debug.Stack())
			err = errs.New(errs.Internal, req.Service+"."+req.Method, "handler panicked: %v", rec)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Internal, req.Service+"."+req.Method, err)
	}
	return m.desc.Handler(ctx, req)
}
