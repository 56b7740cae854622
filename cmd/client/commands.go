package client

import (
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/pstore/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	keyCmd = &cobra.Command{
		Use:   "key",
		Short: "Fetches the server's public key and stores it in the key file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pem, err := rpcClient.FetchKey()
			if err != nil {
				return err
			}
			if keyFile := viper.GetString("key-file"); keyFile != "" {
				fmt.Printf("server key stored in %s\n", keyFile)
			} else {
				fmt.Print(string(pem))
			}
			return nil
		},
	}
	regCmd = &cobra.Command{
		Use:   "reg",
		Short: "Registers a new user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, pass, err := util.GetCredentials()
			if err != nil {
				return err
			}
			if err := rpcClient.Register(user, pass); err != nil {
				return err
			}
			fmt.Println("registered successfully")
			return nil
		},
	}
	byeCmd = &cobra.Command{
		Use:   "bye",
		Short: "Stops the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, pass, err := util.GetCredentials()
			if err != nil {
				return err
			}
			if err := rpcClient.Bye(user, pass); err != nil {
				return err
			}
			fmt.Println("server is shutting down")
			return nil
		},
	}
	savCmd = &cobra.Command{
		Use:   "sav",
		Short: "Makes the server write its user table to disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, pass, err := util.GetCredentials()
			if err != nil {
				return err
			}
			if err := rpcClient.Save(user, pass); err != nil {
				return err
			}
			fmt.Println("saved successfully")
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [file]",
		Short: "Sets the content of the user to the contents of a file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(args[0])
			if err != nil {
				return err
			}
			user, pass, err := util.GetCredentials()
			if err != nil {
				return err
			}
			if err := rpcClient.SetContent(user, pass, content); err != nil {
				return err
			}
			fmt.Printf("set %d bytes successfully\n", len(content))
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [user]",
		Short: "Fetches the content of a user and writes it to <user>.file.dat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			user, pass, err := util.GetCredentials()
			if err != nil {
				return err
			}
			content, err := rpcClient.GetContent(user, pass, []byte(target))
			if err != nil {
				return err
			}

			out := viper.GetString("out")
			if out == "" {
				out = target + ".file.dat"
			}
			if err := writeOutput(out, content); err != nil {
				return err
			}
			if out != "-" {
				fmt.Printf("wrote %d bytes to %s\n", len(content), out)
			}
			return nil
		},
	}
	allCmd = &cobra.Command{
		Use:   "all",
		Short: "Lists all users, one per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, pass, err := util.GetCredentials()
			if err != nil {
				return err
			}
			list, err := rpcClient.ListUsers(user, pass)
			if err != nil {
				return err
			}

			out := viper.GetString("out")
			if out == "" {
				out = "-"
			}
			if len(list) > 0 && out == "-" {
				list = append(list, '\n')
			}
			return writeOutput(out, list)
		},
	}
)

func init() {
	getCmd.Flags().String("out", "", util.WrapString("File the content is written to (- for stdout). Defaults to <user>.file.dat"))
	allCmd.Flags().String("out", "", util.WrapString("File the listing is written to. Printed to stdout if empty"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// readInput reads a whole file, "-" reads stdin
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// writeOutput writes data to a file, "-" writes to stdout
func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0600)
}
