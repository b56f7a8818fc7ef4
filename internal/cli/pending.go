package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/server"
)

var pendingRoute string

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().StringVar(&pendingRoute, "route", "", "Filter by escalation route (supervisor|security)")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List escalations awaiting resolution",
	Long:  "Shows pending escalations ordered by deadline. Escalations past their deadline\nsettle by fallback the next time the server runs.",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	st, err := buildStack(server.Config{}, 0)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.escalations.Pending(pendingRoute)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No pending escalations.")
		return nil
	}

	fmt.Printf("%-38s %-12s %-24s %-20s %s\n", "ID", "ROUTE", "ENTITY", "ACTION", "DEADLINE")
	for _, e := range list {
		fmt.Printf("%-38s %-12s %-24s %-20s %s\n",
			e.ID,
			e.Route,
			truncate(e.EntityID, 24),
			truncate(e.Action, 20),
			e.Deadline.Format("2006-01-02 15:04:05"),
		)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
