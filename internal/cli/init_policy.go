package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/constraint"
)

func init() {
	rootCmd.AddCommand(initPolicyCmd)
}

var initPolicyCmd = &cobra.Command{
	Use:   "init-policy",
	Short: "Generate a commented default constraint set",
	Long:  "Creates constraints.yaml in the data directory with the default constraint\nset. Edit it to customize gating; the serve command hot-reloads changes.",
	RunE:  runInitPolicy,
}

func runInitPolicy(cmd *cobra.Command, args []string) error {
	dir, err := resolveDataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}

	path := resolveConstraintsPath(dir)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("constraint set already exists at %s", path)
	}

	if err := os.WriteFile(path, []byte(constraint.DefaultSetYAML()), 0644); err != nil {
		return fmt.Errorf("failed to write constraint set: %w", err)
	}
	fmt.Printf("Created %s\n", path)
	return nil
}
