package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChainCoinUnlimited/ChainCoin/src/version"
)

// NewVersionCmd returns the command that prints the build version.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		RunE:  printVersion,
	}
}

func printVersion(cmd *cobra.Command, args []string) error {
	fmt.Println(version.Version)
	return nil
}
