// Package base implements the framed stream protocol shared by the tcp and
// unix transports. Protocol specific parts (listen, dial, socket tuning) are
// injected through IServerConnector and IClientConnector.
//
// Frame format: 8 byte request id, 4 byte payload length, payload. The
// request id correlates responses on a connection, so many requests can be
// in flight on one socket and complete out of order.
//
// Client:
//
//   - several connections per endpoint, chosen round robin
//   - retries with exponential backoff and jitter
//   - a broken connection fails its pending requests and reconnects in the
//     background
//   - Send gives up when its context is done
//
// Server:
//
//   - one goroutine per connection plus a bounded worker pool per connection
//   - read buffers come from a sync.Pool
//   - Listen returns when its context is cancelled and closes all open
//     connections after in-flight requests were answered
package base
