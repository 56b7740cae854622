package transport

import (
	"net"

	"github.com/ValentinKolb/pstore/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ConnHandleFunc is a function type that serves one accepted connection.
// It is called once per connection and must read the request and write the
// response, the transport closes the connection afterward.
// Returning true asks the transport to stop accepting and shut down.
type ConnHandleFunc func(conn net.Conn) (halt bool)

// IRPCServerTransport is the interface for the server side of the transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler called for every accepted connection
	RegisterHandler(handler ConnHandleFunc)
	// Listen starts the transport and accepts connections until Close is called
	// or a handler returns true. It returns once all open connections are done.
	Listen(config common.ServerConfig) error
	// Ready is closed as soon as the listener accepts connections
	Ready() <-chan struct{}
	// Addr returns the address of the listener, nil before Ready is closed
	Addr() net.Addr
	// Close stops the listener, open connections are given a grace period
	// before they are closed forcibly
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the client side of the transport layer
type IRPCClientTransport interface {
	// Connect stores the configuration and checks that the endpoint is reachable
	Connect(config common.ClientConfig) error
	// Send opens a new connection, writes req, closes the write side and
	// returns everything the server sends until it closes the connection.
	Send(req []byte) (resp []byte, err error)
	// Close releases the transport
	Close() error
}
