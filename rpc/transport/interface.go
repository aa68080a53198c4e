package transport

import (
	"context"

	"github.com/ValentinKolb/dCtl/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is called by a server transport for every received request
// frame and returns the response frame. The context ends when the transport
// shuts down or the configured request timeout expires.
type ServerHandleFunc func(ctx context.Context, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler for all incoming requests
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport and blocks until ctx is cancelled or the
	// listener fails
	Listen(ctx context.Context, config common.ServerConfig) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to one of the endpoints and returns the response.
	// It gives up when ctx is done.
	Send(ctx context.Context, req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
