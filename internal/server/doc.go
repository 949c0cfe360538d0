// Package server implements the HTTP and WebSocket surface of the relay.
//
// The implementation is organized into specialized files for configuration,
// logging, metrics, the origin policy, the gorilla connection adapter, routing
// and HTTP handlers. The chat and echo semantics live in package chat; this
// package only moves frames between sockets and that core.
package server
