// Package server implements the chat server core: accepting connections,
// running each one through the NEWUSER/LOGIN handshake, keeping the registry
// of logged-in sessions and broadcasting chat lines and roster updates.
//
// The implementation is organized into specialized files for the line
// transport, sessions, the registry, broadcasting, the protocol state
// machine, listeners, and the optional WebSocket endpoint.
package server
