// Package http implements the rpc transport on top of net/http. Every frame
// is POSTed to /rpc, the response body is the reply frame. The client
// distributes requests round robin over the endpoints and retries on the
// next endpoint when a request fails.
//
// Useful behind load balancers and for debugging with the json serializer.
package http
