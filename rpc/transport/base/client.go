package base

import (
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"

	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/transport"
)

const (
	// maxResponseLen bounds the bytes read for one response
	maxResponseLen = 64 * 1024 * 1024
	// initialBackoff is the pause before the first dial retry, doubled for every further one
	initialBackoff = 50 * time.Millisecond
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector IClientConnector
	config    common.ClientConfig
	connected bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if config.Transport.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}

	// Store the config
	t.config = config
	t.connected = true

	Logger.Debugf("Using %s transport to %s", t.connector.GetName(), config.Transport.Endpoint)
	return nil
}

func (t *clientTransport) Send(req []byte) ([]byte, error) {
	if !t.connected {
		return nil, fmt.Errorf("transport is not connected")
	}

	conn, err := t.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Timeout for the whole exchange
	if t.config.TimeoutSecond > 0 {
		timeout := time.Duration(t.config.TimeoutSecond) * time.Second
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	// signal the end of the request, the server answers and closes
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return nil, fmt.Errorf("failed to close write side: %w", err)
		}
	}

	resp, err := io.ReadAll(io.LimitReader(conn, maxResponseLen+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(resp) > maxResponseLen {
		return nil, fmt.Errorf("response exceeds %d bytes", maxResponseLen)
	}
	return resp, nil
}

func (t *clientTransport) Close() error {
	t.connected = false
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// dial connects to the endpoint, retrying with exponential backoff.
// Only dialing is retried: once a request was written it may have been executed.
func (t *clientTransport) dial() (net.Conn, error) {
	var lastErr error

	// We always try at least once, and up to maxRetries times
	maxRetries := t.config.Transport.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	backoff := initialBackoff

	for i := 0; i < maxRetries; i++ {
		conn, err := t.connector.Connect(t.config.Transport.Endpoint)
		if err == nil {
			if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("failed to upgrade connection to %s: %w", t.config.Transport.Endpoint, err)
			}
			return conn, nil
		}

		lastErr = err
		Logger.Debugf("Connection attempt %d/%d to %s failed: %v", i+1, maxRetries, t.config.Transport.Endpoint, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoff) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter))
			backoff *= 2
		}
	}

	// All attempts failed
	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", t.config.Transport.Endpoint, maxRetries, lastErr)
}
