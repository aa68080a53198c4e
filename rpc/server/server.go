package server

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/rpc/common"
	"github.com/ValentinKolb/dCtl/rpc/serializer"
	"github.com/ValentinKolb/dCtl/rpc/transport"
	thttp "github.com/ValentinKolb/dCtl/rpc/transport/http"
	"github.com/ValentinKolb/dCtl/rpc/transport/tcp"
	"github.com/ValentinKolb/dCtl/rpc/transport/unix"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("rpc")

// NewServerTransport creates the server transport selected by config
func NewServerTransport(config common.ServerTransportConfig) (transport.IRPCServerTransport, error) {
	switch config.Type {
	case common.TransportTCP, "":
		return tcp.NewTCPServerTransport(config.BufferSize, config.WorkersPerConn), nil
	case common.TransportUnix:
		return unix.NewUnixServerTransport(config.BufferSize, config.WorkersPerConn), nil
	case common.TransportHTTP:
		return thttp.NewHttpServerTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q, must be one of tcp, unix, http", config.Type)
	}
}

// RPCServer exposes a Registry over a transport
//
// Usage:
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(0, 0), serializer.NewBinarySerializer(), registry)
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	registry   *Registry
}

// NewRPCServer creates a new RPC server
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	registry *Registry,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s := &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		registry:   registry,
	}
	transport.RegisterHandler(s.Handle)
	return s
}

// Handle decodes one request frame, dispatches it and encodes the reply
func (s *RPCServer) Handle(ctx context.Context, req []byte) []byte {
	var msg common.Message
	var resp *common.Message

	if err := s.serializer.Deserialize(req, &msg); err != nil {
		resp = common.NewErrorResponse(errs.New(errs.Validation, "rpc", "failed to deserialize request: %v", err))
	} else {
		switch msg.MsgType {
		case common.MsgTPing:
			resp = &common.Message{MsgType: common.MsgTSuccess}
		case common.MsgTCall:
			reply, err := s.registry.Invoke(ctx, msg.Service, msg.Method, msg.AuthToken, msg.Payload)
			resp = common.NewCallResponse(reply, err)
		default:
			resp = common.NewErrorResponse(errs.New(errs.Validation, "rpc", "unsupported message type %s", msg.MsgType))
		}
	}

	out, err := s.serializer.Serialize(*resp)
	if err != nil {
		log.Errorf("failed to serialize response: %v", err)
		out, _ = s.serializer.Serialize(*common.NewErrorResponse(errs.New(errs.Internal, "rpc", "failed to serialize response: %v", err)))
	}
	return out
}

// Serve listens until ctx is cancelled
func (s *RPCServer) Serve(ctx context.Context) error {
	log.Infof("Serving rpc on %s (%s, %s)", s.config.Transport.Endpoint, s.config.Transport.Type, s.config.Serializer)
	return s.transport.Listen(ctx, s.config)
}
