package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/server"
)

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum records to show")
}

var historyCmd = &cobra.Command{
	Use:   "history <entity-id>",
	Short: "Show an entity's evidence chain records",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	st, err := buildStack(server.Config{}, 0)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ledger.ByEntity(args[0], historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No records.")
		return nil
	}

	fmt.Printf("%-6s %-22s %-20s %s\n", "SEQ", "KIND", "ACTION", "TIMESTAMP")
	for _, rec := range records {
		fmt.Printf("%-6d %-22s %-20s %s\n",
			rec.Seq,
			rec.Kind,
			truncate(rec.Action, 20),
			rec.Timestamp,
		)
	}
	return nil
}
