package tcp

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/transport"
)

// startEchoServer serves a handler that reads n bytes and writes them back
// reversed. A request starting with "BYE" halts the server.
func startEchoServer(t *testing.T, n int) (string, <-chan error) {
	t.Helper()

	srv := NewTCPServerTransport()
	srv.RegisterHandler(func(conn net.Conn) bool {
		buf := make([]byte, n)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return false
		}
		for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
		_, _ = conn.Write(buf)
		return bytes.HasSuffix(buf, []byte("EYB"))
	})

	done := make(chan error, 1)
	go func() {
		done <- srv.Listen(common.ServerConfig{
			Transport:     common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
			TimeoutSecond: 5,
		})
	}()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("Listen returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not become ready")
	}
	t.Cleanup(func() { _ = srv.Close() })

	return srv.Addr().String(), done
}

func newClient(t *testing.T, endpoint string, retries int) transport.IRPCClientTransport {
	t.Helper()
	c := NewTCPClientTransport()
	err := c.Connect(common.ClientConfig{
		TimeoutSecond: 5,
		Transport:     common.ClientTransportConfig{Endpoint: endpoint, RetryCount: retries},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return c
}

func TestSendReceive(t *testing.T) {
	addr, _ := startEchoServer(t, 4)
	c := newClient(t, addr, 1)

	for i := 0; i < 3; i++ {
		resp, err := c.Send([]byte("abcd"))
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if string(resp) != "dcba" {
			t.Errorf("Expected dcba, got %q", resp)
		}
	}
}

func TestUnreadInputDoesNotResetResponse(t *testing.T) {
	addr, _ := startEchoServer(t, 4)
	c := newClient(t, addr, 1)

	// the handler reads only 4 bytes, the rest is drained before closing
	req := append([]byte("abcd"), bytes.Repeat([]byte("x"), 256*1024)...)
	resp, err := c.Send(req)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(resp) != "dcba" {
		t.Errorf("Expected dcba, got %q", resp)
	}
}

func TestShortRequest(t *testing.T) {
	addr, _ := startEchoServer(t, 4)
	c := newClient(t, addr, 1)

	// EOF before 4 bytes: no response, just the close
	resp, err := c.Send([]byte("ab"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(resp) != 0 {
		t.Errorf("Expected empty response, got %q", resp)
	}
}

func TestHalt(t *testing.T) {
	addr, done := startEchoServer(t, 3)
	c := newClient(t, addr, 1)

	if _, err := c.Send([]byte("BYE")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Listen returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestDialRetries(t *testing.T) {
	// reserve a port and close it again so nothing listens there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	c := newClient(t, addr, 3)
	start := time.Now()
	if _, err := c.Send([]byte("abcd")); err == nil {
		t.Fatalf("Expected error when no server is listening")
	}
	// two backoff pauses of roughly 50ms and 100ms
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Expected retries with backoff, returned after %s", elapsed)
	}
}

func TestSendWithoutConnect(t *testing.T) {
	c := NewTCPClientTransport()
	if _, err := c.Send([]byte("abcd")); err == nil {
		t.Errorf("Expected error for unconnected transport")
	}
}
