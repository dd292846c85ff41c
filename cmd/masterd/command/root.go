// Package command implements masterd's cobra command tree: run, keygen, and
// version, grounded on the teacher's cmd/babble/commands package.
package command

import (
	"github.com/spf13/cobra"

	"github.com/ChainCoinUnlimited/ChainCoin/src/config"
)

var cliConfig = config.NewDefaultConfig()

// RootCmd is the root command for masterd.
var RootCmd = &cobra.Command{
	Use:              "masterd",
	Short:            "masternode-tier mixing and governance service",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(NewRunCmd())
	RootCmd.AddCommand(NewKeygenCmd())
	RootCmd.AddCommand(NewVersionCmd())
}
