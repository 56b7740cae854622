// Package base provides the transport logic shared by all stream based
// transports (TCP, Unix sockets). Protocol specific parts are injected through
// the IClientConnector and IServerConnector interfaces.
//
// The package focuses on:
//   - One request per connection: the server hands every accepted connection to
//     the registered handler exactly once and closes it afterward
//   - Delivering the complete response: the server closes its write side first
//     and drains unread input before closing (lingering close), the client
//     half-closes after writing its request and reads until EOF
//   - Bounded exchanges: a per connection deadline on both sides
//   - Clean shutdown: open connections are tracked in a concurrent map keyed by
//     a random connection id and are closed if they outlive the grace period
//
// Key Components:
//
//   - serverTransport: accept loop with one goroutine per connection. A handler
//     returning true stops the listener, Listen returns once all connections
//     are done.
//
//   - clientTransport: dials a fresh connection per request. Failed dials are
//     retried with exponential backoff and jitter, a written request never is.
//
// Thread Safety:
//
//	Send may be called concurrently, every call uses its own connection.
package base
