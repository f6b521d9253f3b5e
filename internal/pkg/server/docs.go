// Package server implements the TCP front end of the game server.
//
// The server performs the following steps:
//  1. Binds a TCP listener on the configured port.
//  2. For each accepted connection, registers a session with the hub;
//     over-capacity connections are answered with an ERR line and closed.
//  3. Runs one reader goroutine per connection that frames the stream into
//     newline-terminated lines and feeds them to the hub's dispatcher.
//  4. Reports end-of-stream or read errors to the hub as a transport loss,
//     which decides between a reconnection grace window and termination.
//
// Everything beyond socket plumbing lives in the hub: nickname
// negotiation, presence, matchmaking and the match engines themselves.
package server
