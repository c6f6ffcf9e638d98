// Package server implements the core HTTP and WebSocket functionality for
// the roomtalk chat backend.
//
// The implementation is organized into specialized files: the connection
// registry, the typed protocol events and their router, the room and friend
// services, per-session clients, configuration, and HTTP handlers. Sessions
// multiplex onto shared room state through the Registry; the services
// persist through the Gateway capability and push result events back to one
// or more channels.
package server
