package util

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/transport"
	"github.com/ValentinKolb/pstore/rpc/transport/tcp"
	"github.com/ValentinKolb/pstore/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. PSTORE_TIMEOUT)
	EnvPrefix = "pstore"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and binds environment variables with the
// PSTORE_ prefix (dashes become underscores, e.g. PSTORE_KEY_FILE)
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of one request"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the pstore server (e.g. localhost:8080 or /tmp/pstore.sock for the unix transport)"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry connecting to the server"))

	key = "key-file"
	cmd.PersistentFlags().String(key, "server.pub", WrapString("File the server's public key is cached in. Written by the key command, fetched automatically if missing"))

	key = "user"
	cmd.PersistentFlags().String(key, "", WrapString("The name of the user doing the request"))

	key = "password"
	cmd.PersistentFlags().String(key, "", WrapString("The password of the user doing the request. Prompted for if empty and stdin is a terminal"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp transport only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, tcp transport only)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, tcp transport only, 0 keeps the system default)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		KeyFile:       viper.GetString("key-file"),
		Transport: common.ClientTransportConfig{
			Endpoint:   viper.GetString("endpoint"),
			RetryCount: viper.GetInt("retries"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
	}
}

// GetClientTransport creates the client transport based on configuration
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates the server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetCredentials returns the configured user and password. A missing password
// is read from the terminal without echo.
func GetCredentials() (user, pass []byte, err error) {
	user = []byte(viper.GetString("user"))
	if len(user) == 0 {
		return nil, nil, fmt.Errorf("no user given (use --user or PSTORE_USER)")
	}

	pass = []byte(viper.GetString("password"))
	if len(pass) == 0 {
		pass, err = ReadPassword(fmt.Sprintf("Password for %s: ", user))
		if err != nil {
			return nil, nil, err
		}
	}
	return user, pass, nil
}

// ReadPassword reads a password from stdin, without echo if it is a terminal
func ReadPassword(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // New line after password
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
