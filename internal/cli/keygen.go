package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/chain"
)

func init() {
	rootCmd.AddCommand(keygenCmd)
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the ed25519 chain signing key",
	Long:  "Creates chain.key in the data directory and prints the public key. Existing\nkeys are never overwritten: replacing the key would orphan the signatures of\nevery record already on the chain.",
	RunE:  runKeygen,
}

func runKeygen(cmd *cobra.Command, args []string) error {
	dir, err := resolveDataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}

	path := filepath.Join(dir, "chain.key")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("key already exists at %s", path)
	}

	signer, err := chain.GenerateKey()
	if err != nil {
		return err
	}
	if err := signer.Save(path); err != nil {
		return err
	}

	fmt.Printf("Created %s\n", path)
	fmt.Printf("Public key: %s\n", signer.PublicKeyHex())
	return nil
}
