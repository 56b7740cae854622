package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/transport"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	// shutdownGrace is how long Close waits for open connections before closing them
	shutdownGrace = 5 * time.Second
	// drainLimit bounds the unread input discarded before a connection is closed
	drainLimit = 4 * 1024 * 1024
	// drainTimeout bounds the time spent discarding unread input
	drainTimeout = 2 * time.Second
	// acceptBackoff is the pause after a temporary accept error
	acceptBackoff = 50 * time.Millisecond
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector IServerConnector
	handler   transport.ConnHandleFunc
	config    common.ServerConfig

	mu        sync.Mutex // protects listener
	listener  net.Listener
	ready     chan struct{}
	readyOnce sync.Once
	addr      atomic.Value // net.Addr

	// open connections by id, used to close them on shutdown
	conns    *xsync.MapOf[string, net.Conn]
	wg       sync.WaitGroup
	stopping atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with the specified connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		ready:     make(chan struct{}),
		conns:     xsync.NewMapOf[string, net.Conn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ConnHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Ready() <-chan struct{} {
	return t.ready
}

func (t *serverTransport) Addr() net.Addr {
	addr, _ := t.addr.Load().(net.Addr)
	return addr
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()

	t.addr.Store(listener.Addr())
	t.readyOnce.Do(func() { close(t.ready) })

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())

	// Close may have been called before the listener existed
	if t.stopping.Load() {
		_ = listener.Close()
	}

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.stopping.Load() || errors.Is(err, net.ErrClosed) {
				break
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(acceptBackoff)
			continue
		}

		id := uuid.NewString()
		t.conns.Store(id, conn)
		t.wg.Add(1)

		// Handle the connection in a goroutine
		go t.handleConnection(id, conn)
	}

	t.awaitConnections()
	Logger.Infof("%s server on %s stopped", t.connector.GetName(), listener.Addr())
	return nil
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopping.Swap(true) || t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection serves one connection and closes it
func (t *serverTransport) handleConnection(id string, conn net.Conn) {
	defer t.wg.Done()
	defer t.conns.Delete(id)

	start := time.Now()
	Logger.Debugf("Accepted connection %s from %s", id, conn.RemoteAddr())

	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		Logger.Warningf("Failed to upgrade connection %s: %v", id, err)
	}

	// Timeout for the whole exchange
	if t.config.TimeoutSecond > 0 {
		timeout := time.Duration(t.config.TimeoutSecond) * time.Second
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			Logger.Errorf("Failed to set deadline on connection %s: %v", id, err)
			_ = conn.Close()
			return
		}
	}

	halt := t.handler(conn)

	lingeringClose(conn)
	Logger.Debugf("Connection %s done after %s", id, time.Since(start))

	if halt {
		Logger.Infof("Shutdown requested by connection %s", id)
		_ = t.Close()
	}
}

// awaitConnections waits for open connections to finish and closes the
// remaining ones once the grace period has passed
func (t *serverTransport) awaitConnections() {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(shutdownGrace):
	}

	Logger.Warningf("Closing %d connections still open after %s", t.conns.Size(), shutdownGrace)
	t.conns.Range(func(id string, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})
	<-done
}

// lingeringClose closes the write side first so the response is flushed and
// followed by EOF, then discards unread input before closing. Closing a socket
// with unread data would reset the connection and could destroy the response.
func lingeringClose(conn net.Conn) {
	defer conn.Close()

	cw, ok := conn.(interface{ CloseWrite() error })
	if !ok {
		return
	}
	if err := cw.CloseWrite(); err != nil {
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(drainTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(conn, drainLimit))
}
