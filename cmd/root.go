package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/pstore/cmd/client"
	"github.com/ValentinKolb/pstore/cmd/serve"
	"github.com/ValentinKolb/pstore/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "pstore",
		Short: "secure profile store",
		Long: fmt.Sprintf(`pstore (v%s)

A profile store server and client. Users register with a name and a
password and store a small binary blob. Every request is encrypted with a
fresh AES key that is itself encrypted with the server's RSA key.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pstore",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pstore v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(client.ClientCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
