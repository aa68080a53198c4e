package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/common"
	"github.com/ValentinKolb/dCtl/rpc/schema"
	"github.com/ValentinKolb/dCtl/rpc/serializer"
	"github.com/ValentinKolb/dCtl/rpc/server"
	"github.com/ValentinKolb/dCtl/rpc/transport"
	thttp "github.com/ValentinKolb/dCtl/rpc/transport/http"
	"github.com/ValentinKolb/dCtl/rpc/transport/tcp"
	"github.com/ValentinKolb/dCtl/rpc/transport/unix"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("rpc")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Client. Local, Remote or both may be set.
type Options struct {
	// Catalog validates params before dispatch
	Catalog *schema.Catalog
	// Local is the registry of this process, services hosted there are
	// invoked without serialization
	Local *server.Registry
	// Remote reaches the peers, required for services not hosted locally
	Remote     transport.IRPCClientTransport
	Serializer serializer.IRPCSerializer
	// Timeout applies to calls whose context has no deadline (0 = none)
	Timeout time.Duration
	// AuthToken is the default token of every call
	AuthToken string
}

// CallOption modifies a single call
type CallOption func(*callOptions)

type callOptions struct {
	token    string
	hasToken bool
}

// WithAuthToken sets the token of one call, overriding the client default
// and the session of the calling context
func WithAuthToken(token string) CallOption {
	return func(o *callOptions) {
		o.token = token
		o.hasToken = true
	}
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// Client calls rpc methods, in process when the service is registered
// locally and over the transport otherwise. It is safe for concurrent use.
type Client struct {
	opts Options
}

// New creates a client
func New(opts Options) *Client {
	if opts.Catalog == nil {
		if opts.Local != nil {
			opts.Catalog = opts.Local.Catalog()
		} else {
			opts.Catalog = schema.NewCatalog()
		}
	}
	if opts.Serializer == nil {
		opts.Serializer = serializer.NewBinarySerializer()
	}
	return &Client{opts: opts}
}

// NewClientTransport creates the client transport selected by t
func NewClientTransport(t common.TransportType) (transport.IRPCClientTransport, error) {
	switch t {
	case common.TransportTCP, "":
		return tcp.NewTCPClientTransport(), nil
	case common.TransportUnix:
		return unix.NewUnixClientTransport(), nil
	case common.TransportHTTP:
		return thttp.NewHttpClientTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q, must be one of tcp, unix, http", t)
	}
}

// Dial connects to the endpoints of config and returns a remote only client
func Dial(config common.ClientConfig, catalog *schema.Catalog) (*Client, error) {
	t, err := NewClientTransport(config.Transport.Type)
	if err != nil {
		return nil, err
	}
	s, err := serializer.ByName(config.Serializer)
	if err != nil {
		return nil, err
	}
	if err := t.Connect(config); err != nil {
		return nil, err
	}
	return New(Options{
		Catalog:    catalog,
		Remote:     t,
		Serializer: s,
		Timeout:    time.Duration(config.TimeoutSecond) * time.Second,
		AuthToken:  config.AuthToken,
	}), nil
}

// Close closes the remote transport
func (c *Client) Close() error {
	if c.opts.Remote != nil {
		return c.opts.Remote.Close()
	}
	return nil
}

// Call invokes service.method with params and decodes the result into
// reply (which may be nil). Params are validated before dispatch.
func (c *Client) Call(ctx context.Context, service, method string, params, reply interface{}, opts ...CallOption) error {
	op := service + "." + method

	var raw []byte
	if params == nil {
		raw = []byte("{}")
	} else {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			return errs.New(errs.Validation, op, "params: %v", err)
		}
	}
	if err := c.opts.Catalog.ValidateParams(service, method, raw); err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok && c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	token := c.token(ctx, opts)

	var out []byte
	var err error
	if c.opts.Local != nil && c.opts.Local.Has(service) {
		out, err = c.opts.Local.Invoke(ctx, service, method, token, raw)
	} else {
		out, err = c.remote(ctx, service, method, token, raw)
	}
	if err != nil {
		return err
	}

	if reply == nil || len(out) == 0 {
		return nil
	}
	if err := json.Unmarshal(out, reply); err != nil {
		return errs.New(errs.Internal, op, "decode reply: %v", err)
	}
	return nil
}

// Go starts Call in a goroutine and returns a Future for its result
func (c *Client) Go(ctx context.Context, service, method string, params, reply interface{}, opts ...CallOption) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.err = c.Call(ctx, service, method, params, reply, opts...)
	}()
	return f
}

// Ping checks that a remote peer answers
func (c *Client) Ping(ctx context.Context) error {
	if c.opts.Remote == nil {
		return nil
	}
	req, err := c.opts.Serializer.Serialize(common.Message{MsgType: common.MsgTPing})
	if err != nil {
		return errs.Wrap(errs.Internal, "rpc.ping", err)
	}
	if _, err := c.opts.Remote.Send(ctx, req); err != nil {
		return errs.Wrap(errs.ExternalDependency, "rpc.ping", err)
	}
	return nil
}

func (c *Client) token(ctx context.Context, opts []CallOption) string {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	switch {
	case o.hasToken:
		return o.token
	case c.opts.AuthToken != "":
		return c.opts.AuthToken
	}
	// nested calls act on behalf of the caller
	if s := auth.FromContext(ctx); s != nil {
		return s.Token
	}
	return ""
}

func (c *Client) remote(ctx context.Context, service, method, token string, params []byte) ([]byte, error) {
	op := service + "." + method
	if c.opts.Remote == nil {
		return nil, errs.New(errs.NotFound, op, "service %q is not hosted here and no peers are configured", service)
	}

	req, err := c.opts.Serializer.Serialize(*common.NewCallRequest(service, method, token, params))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, op, err)
	}

	respBytes, err := c.opts.Remote.Send(ctx, req)
	if err != nil {
		log.Debugf("%s: transport error: %v", op, err)
		return nil, errs.Wrap(errs.ExternalDependency, op, err)
	}

	var resp common.Message
	if err := c.opts.Serializer.Deserialize(respBytes, &resp); err != nil {
		return nil, errs.New(errs.Internal, op, "failed to deserialize response: %v", err)
	}
	if err := resp.AsError(op); err != nil {
		return nil, err
	}
	if resp.MsgType != common.MsgTSuccess {
		return nil, errs.New(errs.Internal, op, "unexpected message type %s", resp.MsgType)
	}
	return resp.Payload, nil
}

// --------------------------------------------------------------------------
// Future
// --------------------------------------------------------------------------

// Future is the pending result of Client.Go
type Future struct {
	done chan struct{}
	err  error
}

// Done is closed when the call finished
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the call finished or ctx is done. The reply passed to
// Go is valid after Wait returned nil.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
