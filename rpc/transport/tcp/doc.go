// Package tcp provides the TCP connectors for the base transport. Accepted
// and dialed sockets are tuned from common.SocketConf and common.TCPConf
// (no delay, buffer sizes, keep alive, linger).
//
// The default server buffer size is 512 KB with 16 concurrent requests per
// connection.
package tcp
