package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/escalation"
	"github.com/ppiankov/trustgate/internal/server"
)

var (
	approveBy            string
	approveJustification string
)

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().StringVar(&approveBy, "by", "", "Identity of the approver")
	approveCmd.Flags().StringVar(&approveJustification, "justification", "", "Why the action is approved (required on some routes)")
}

var approveCmd = &cobra.Command{
	Use:   "approve <escalation-id>",
	Short: "Approve a pending escalation",
	Long:  "Settles an escalation as approved and records the resolution on the evidence\nchain. Approving an already-settled escalation is a no-op.",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	return resolveEscalation(args[0], escalation.ResolutionApprove, approveBy, approveJustification)
}

func resolveEscalation(id, resolution, by, justification string) error {
	st, err := buildStack(server.Config{}, 0)
	if err != nil {
		return err
	}
	defer st.Close()

	// server.New wires the settlement callback that lands the
	// resolution on the evidence chain.
	server.New(server.Config{}, st.Deps())

	settled, err := st.scheduler.Resolve(id, resolution, by, justification)
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s", settled.ID, settled.Status)
	if settled.ResolvedBy != "" {
		fmt.Printf("  by %s", settled.ResolvedBy)
	}
	fmt.Println()
	return nil
}
