// Package dispatch interprets JSON-RPC 2.0 messages against tenant state.
//
// A Session represents one client conversation: it is bound to a tenant
// (and optionally to a single connector type) and walks a small state
// machine from uninitialized through ready to closed. Transports own
// framing; they hand the dispatcher raw messages and emit whatever
// Response comes back. Notifications return nil and must produce no frame.
//
// Tool names are namespaced "{connector_type}_{action}" and resource URIs
// "{connector_type}://{path}". Routing matches the longest registered type
// prefix, so types that contain underscores resolve correctly.
//
// Aggregating methods (tools/list, resources/list) are fail-soft: a
// connector that errors is logged and skipped so its siblings still
// appear. Execution failures surface as isError text results rather than
// protocol errors; protocol errors are reserved for malformed requests
// and unroutable names.
package dispatch
