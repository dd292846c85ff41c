package main

import (
	"fmt"
	"os"

	"github.com/ChainCoinUnlimited/ChainCoin/cmd/masterd/command"
)

func main() {
	if err := command.RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
