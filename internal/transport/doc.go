// Package transport exposes the dispatcher over WebSocket, SSE, and plain
// HTTP POST.
//
// All transports carry identical JSON-RPC payloads; only framing differs.
// WebSocket holds one session per connection and processes frames in
// order. SSE pairs a GET event stream with a POST inbox: the first event
// names the inbox endpoint, replies arrive as message events, and POSTs
// are acknowledged with 202 before the response exists. HTTP POST is
// stateless — each request runs in a fresh, pre-initialized session.
//
// Unknown tenants and connector scopes are reported before any protocol
// exchange: 404 on HTTP and SSE, close code 4004 on WebSocket.
package transport
