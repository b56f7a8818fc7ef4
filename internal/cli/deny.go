package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/escalation"
)

var (
	denyBy            string
	denyJustification string
)

func init() {
	rootCmd.AddCommand(denyCmd)
	denyCmd.Flags().StringVar(&denyBy, "by", "", "Identity of the approver")
	denyCmd.Flags().StringVar(&denyJustification, "justification", "", "Why the action is denied")
}

var denyCmd = &cobra.Command{
	Use:   "deny <escalation-id>",
	Short: "Deny a pending escalation",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeny,
}

func runDeny(cmd *cobra.Command, args []string) error {
	return resolveEscalation(args[0], escalation.ResolutionDeny, denyBy, denyJustification)
}
