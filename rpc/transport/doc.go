// Package transport defines the interfaces for moving protocol messages between
// client and server.
//
// The protocol carries exactly one request and one response per connection and
// the response has no length prefix (a KEY response is terminated by EOF), so
// transports work on whole connections instead of frames:
//
//   - IRPCServerTransport accepts connections and hands each one to a
//     ConnHandleFunc. After the handler returns, the write side is closed first
//     and unread input is drained, so the peer receives the full response even
//     if it sent more than the server consumed.
//
//   - IRPCClientTransport dials a fresh connection per request, writes the
//     request, half-closes the connection and reads the response until EOF.
//
// Implementations for TCP and Unix domain sockets live in the tcp and unix
// subpackages, both built on the base package.
package transport
