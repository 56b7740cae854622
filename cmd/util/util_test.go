package util

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestWrapString(t *testing.T) {
	text := "The address of the pstore server (e.g. localhost:8080 or /tmp/pstore.sock for the unix transport)"
	wrapped := WrapString(text)

	for _, line := range strings.Split(wrapped, "\n") {
		if len(line) > Wrap {
			t.Errorf("Line %q is longer than %d characters", line, Wrap)
		}
	}
	if strings.Join(strings.Fields(wrapped), " ") != text {
		t.Errorf("Wrapping changed the words: %q", wrapped)
	}
	if WrapString("") != "" {
		t.Errorf("Expected empty string")
	}
}

func TestGetClientConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := &cobra.Command{Use: "test"}
	SetupRPCClientFlags(cmd)
	if err := cmd.PersistentFlags().Parse([]string{"--endpoint", "127.0.0.1:9000", "--retries", "5", "--transport-read-buffer", "64"}); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		t.Fatalf("Failed to bind flags: %v", err)
	}

	config := GetClientConfig()
	if config.Transport.Endpoint != "127.0.0.1:9000" {
		t.Errorf("Expected endpoint 127.0.0.1:9000, got %s", config.Transport.Endpoint)
	}
	if config.Transport.RetryCount != 5 {
		t.Errorf("Expected 5 retries, got %d", config.Transport.RetryCount)
	}
	if config.Transport.ReadBufferSize != 64*1024 {
		t.Errorf("Expected read buffer of 64 KB, got %d", config.Transport.ReadBufferSize)
	}
	if config.KeyFile != "server.pub" {
		t.Errorf("Expected default key file server.pub, got %s", config.KeyFile)
	}
	if !config.Transport.TCPNoDelay {
		t.Errorf("Expected TCP_NODELAY to default to true")
	}
}

func TestGetTransport(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	for _, name := range []string{"tcp", "unix"} {
		viper.Set("transport", name)
		if _, err := GetClientTransport(); err != nil {
			t.Errorf("Unexpected error for client transport %s: %v", name, err)
		}
		if _, err := GetServerTransport(); err != nil {
			t.Errorf("Unexpected error for server transport %s: %v", name, err)
		}
	}

	viper.Set("transport", "http")
	if _, err := GetClientTransport(); err == nil {
		t.Errorf("Expected error for unknown transport")
	}
}

func TestGetCredentials(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	if _, _, err := GetCredentials(); err == nil {
		t.Errorf("Expected error without user")
	}

	viper.Set("user", "alice")
	viper.Set("password", "secret")
	user, pass, err := GetCredentials()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(user) != "alice" || string(pass) != "secret" {
		t.Errorf("Expected alice/secret, got %s/%s", user, pass)
	}
}
