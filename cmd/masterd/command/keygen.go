package command

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/ChainCoinUnlimited/ChainCoin/src/crypto/keys"
)

var keyfilePath string

// NewKeygenCmd produces a command that creates the masternode's signing key.
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a new masternode key pair",
		RunE:  keygen,
	}

	cmd.Flags().StringVar(&keyfilePath, "priv", cliConfig.Keyfile(), "File where the private key will be written")

	return cmd
}

func keygen(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(keyfilePath); err == nil {
		return fmt.Errorf("a key already lives under: %s", path.Dir(keyfilePath))
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return fmt.Errorf("generating ECDSA key: %s", err)
	}

	if err := os.MkdirAll(path.Dir(keyfilePath), 0700); err != nil {
		return fmt.Errorf("writing private key: %s", err)
	}

	if err := keys.NewSimpleKeyfile(keyfilePath).WriteKey(key); err != nil {
		return fmt.Errorf("writing private key: %s", err)
	}

	fmt.Printf("Your private key has been saved to: %s\n", keyfilePath)
	fmt.Printf("Your public key is: %s\n", keys.PublicKeyHex(&key.PublicKey))

	return nil
}
