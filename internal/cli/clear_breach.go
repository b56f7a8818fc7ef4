package cli

import (
	"fmt"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/server"
)

var clearBreachBy string

func init() {
	rootCmd.AddCommand(clearBreachCmd)
	clearBreachCmd.Flags().StringVar(&clearBreachBy, "by", "", "Operator clearing the breach (default current user)")
}

var clearBreachCmd = &cobra.Command{
	Use:   "clear-breach",
	Short: "Re-open export of a broken chain range after review",
	Long:  "A detected integrity break blocks export of the affected range. After\nreviewing the break, clear it to re-open export. The broken records stay\nbroken; this only lifts the export block, and the clearance itself is\nrecorded on the chain.",
	RunE:  runClearBreach,
}

func runClearBreach(cmd *cobra.Command, args []string) error {
	st, err := buildStack(server.Config{}, 0)
	if err != nil {
		return err
	}
	defer st.Close()

	from := st.ledger.BreachedFrom()
	if from == 0 {
		fmt.Println("no active breach")
		return nil
	}

	by := clearBreachBy
	if by == "" {
		if u, err := user.Current(); err == nil {
			by = u.Username
		}
	}

	if err := st.ledger.ClearBreach(by); err != nil {
		return err
	}
	fmt.Printf("cleared breach at seq %d, export re-opened\n", from)
	return nil
}
