package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Transport configuration structs
// --------------------------------------------------------------------------

// SocketConf holds socket buffer settings shared by all stream transports
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ServerTransportConfig holds the listener settings of the server
type ServerTransportConfig struct {
	Endpoint string
	SocketConf
	TCPConf
}

// ClientTransportConfig holds the dial settings of the client
type ClientTransportConfig struct {
	Endpoint   string
	RetryCount int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type SnapshotFormat string

const (
	SnapshotFormatBinFile SnapshotFormat = "binfile"
	SnapshotFormatBolt    SnapshotFormat = "bolt"
)

// ServerConfig holds all configuration parameters of the profile server.
type ServerConfig struct {
	Transport ServerTransportConfig

	// per connection read/write deadline, 0 disables it
	TimeoutSecond int64

	// base path of the RSA key pair (<KeyFile>.pri and <KeyFile>.pub)
	KeyFile string

	// persistence settings
	DataFile       string
	SnapshotFormat SnapshotFormat

	// metrics endpoint (e.g. localhost:9090), empty disables it
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.Transport.TCPKeepAliveSec))

	// Keys and storage
	addSection("Storage")
	addField("Key File", c.KeyFile)
	addField("Data File", c.DataFile)
	addField("Snapshot Format", string(c.SnapshotFormat))

	// Observability
	addSection("Observability")
	addField("Log Level", c.LogLevel)
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	} else {
		addField("Metrics Endpoint", "disabled")
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig

	// where the server's public key is cached after a KEY request
	KeyFile string
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Key File", c.KeyFile)

	return sb.String()
}
