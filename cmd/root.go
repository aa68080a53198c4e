package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dCtl/cmd/pool"
	"github.com/ValentinKolb/dCtl/cmd/serve"
	"github.com/ValentinKolb/dCtl/cmd/system"
	"github.com/ValentinKolb/dCtl/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dctl",
		Short: "object storage control plane",
		Long: fmt.Sprintf(`dCtl (v%s)

The control plane of a multi-tenant object storage system. It keeps the
configuration of every tenant system in a replicated config store and
exposes provisioning, pool and account management over rpc.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dCtl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dCtl v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	serve.Version = Version

	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(system.SystemCommands)
	RootCmd.AddCommand(system.AuthCmd)
	RootCmd.AddCommand(pool.PoolCommands)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary, cbor)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
