package client

import (
	"os"

	"github.com/ValentinKolb/pstore/cmd/util"
	"github.com/ValentinKolb/pstore/rpc/client"
	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/serializer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcClient *client.Client

	// ClientCommands represents the client command group
	ClientCommands = &cobra.Command{
		Use:               "client",
		Short:             "Send requests to a pstore server",
		PersistentPreRunE: setupClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the client command
	util.SetupRPCClientFlags(ClientCommands)

	// Add subcommands
	ClientCommands.AddCommand(keyCmd)
	ClientCommands.AddCommand(regCmd)
	ClientCommands.AddCommand(byeCmd)
	ClientCommands.AddCommand(savCmd)
	ClientCommands.AddCommand(setCmd)
	ClientCommands.AddCommand(getCmd)
	ClientCommands.AddCommand(allCmd)
	ClientCommands.AddCommand(perfTestCmd)
}

// setupClient initializes the RPC client
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// stdout is reserved for command output
	common.SetLogOutput(os.Stderr)
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	rpcClient, err = client.NewRPCClient(
		*util.GetClientConfig(),
		t,
		serializer.NewBinarySerializer(),
	)
	return err
}
