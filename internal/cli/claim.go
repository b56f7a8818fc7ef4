package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/server"
)

var (
	claimField     string
	claimThreshold float64
)

func init() {
	rootCmd.AddCommand(claimCmd)
	claimCmd.Flags().StringVar(&claimField, "field", "trust_score", "Numeric payload field the claim is about")
	claimCmd.Flags().Float64Var(&claimThreshold, "threshold", 0, "Threshold the field is compared against")
	claimCmd.MarkFlagRequired("threshold")
}

var claimCmd = &cobra.Command{
	Use:   "claim <seq>",
	Short: "Produce a signed threshold claim about one record",
	Long:  "Attests that a numeric payload field of the given record meets a threshold\nwithout disclosing the value. The claim carries a salted commitment to the\nrecord's content hash and is signed with the chain key.",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaim,
}

func runClaim(cmd *cobra.Command, args []string) error {
	var seq int64
	if _, err := fmt.Sscanf(args[0], "%d", &seq); err != nil {
		return fmt.Errorf("invalid sequence number %q", args[0])
	}

	st, err := buildStack(server.Config{}, 0)
	if err != nil {
		return err
	}
	defer st.Close()

	claim, err := st.ledger.ExportClaim(seq, claimField, claimThreshold)
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(claim, "", "  ")
	fmt.Println(string(out))
	return nil
}
