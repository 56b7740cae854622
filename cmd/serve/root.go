package serve

import (
	"fmt"

	cmdUtil "github.com/ValentinKolb/pstore/cmd/util"
	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/serializer"
	"github.com/ValentinKolb/pstore/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the pstore server",
		Long:    `Start the pstore server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is PSTORE_<flag> (e.g. PSTORE_DATA_FILE=users.db)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the server will listen (e.g. localhost:8080, /tmp/pstore.sock, ...)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Deadline in seconds for one request/response exchange (0 disables it)"))

	key = "key-file"
	ServeCmd.PersistentFlags().String(key, "server", cmdUtil.WrapString("Base name of the RSA key pair (<key-file>.pri and <key-file>.pub). A new pair is generated if the files do not exist"))

	key = "data-file"
	ServeCmd.PersistentFlags().String(key, "pstore.db", cmdUtil.WrapString("File the user table is loaded from at startup and written to by SAV requests"))

	key = "snapshot-format"
	ServeCmd.PersistentFlags().String(key, string(common.SnapshotFormatBinFile), cmdUtil.WrapString("Format of the data file (binfile, bolt)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the Prometheus /metrics endpoint (e.g. localhost:9090). Disabled if empty"))

	key = "transport-write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (tcp transport only)"))

	key = "transport-tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, tcp transport only)"))

	key = "transport-tcp-linger"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The linger time (in seconds, tcp transport only, 0 keeps the system default)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint: viper.GetString("endpoint"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.KeyFile = viper.GetString("key-file")
	serveCmdConfig.DataFile = viper.GetString("data-file")
	serveCmdConfig.SnapshotFormat = common.SnapshotFormat(viper.GetString("snapshot-format"))
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.KeyFile == "" {
		return fmt.Errorf("a key file is required")
	}
	if _, err := server.DBFactoryFor(serveCmdConfig.SnapshotFormat); err != nil {
		return err
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the pstore server
func run(_ *cobra.Command, _ []string) error {
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		serializer.NewBinarySerializer(),
	)

	return serv.Serve()
}
