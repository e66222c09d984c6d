// Package api serves the monitor's state over HTTP and WebSocket.
//
// REST endpoints under /api/v1 expose the latest status snapshot, the
// profile table, the journal and the operator inputs (profile
// selection, manual restart, device command). The WebSocket endpoint
// relays every monitor event as it happens.
//
// The server is a consumer of one monitor subscription: it never touches
// core state directly, and operator inputs are queued into the monitor
// loop through the Controller interface.
//
// There is no authentication. Bind to loopback or put the server behind
// a proxy that provides it.
package api
