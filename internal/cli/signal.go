package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/model"
	"github.com/ppiankov/trustgate/internal/server"
)

var (
	signalCategory string
	signalType     string
	signalValue    float64
	signalSource   string
)

func init() {
	rootCmd.AddCommand(signalCmd)
	signalCmd.Flags().StringVar(&signalCategory, "category", "", "Signal category (behavioral|compliance|identity|context)")
	signalCmd.Flags().StringVar(&signalType, "type", "", "Signal type, e.g. task_completed")
	signalCmd.Flags().Float64Var(&signalValue, "value", 0, "Signal value within the declared range")
	signalCmd.Flags().StringVar(&signalSource, "source", "cli", "Reporting system")
	signalCmd.MarkFlagRequired("category")
	signalCmd.MarkFlagRequired("type")
}

var signalCmd = &cobra.Command{
	Use:   "signal <entity-id>",
	Short: "Submit a trust signal for an entity",
	Long:  "Scores one signal, records it on the evidence chain, and prints the score movement.\nDampened signals are accepted and reported, never rejected.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSignal,
}

func runSignal(cmd *cobra.Command, args []string) error {
	st, err := buildStack(server.Config{}, 0)
	if err != nil {
		return err
	}
	defer st.Close()

	core := server.New(server.Config{}, st.Deps())
	res, err := core.SubmitSignal(model.Signal{
		EntityID: args[0],
		Category: model.Category(signalCategory),
		Type:     signalType,
		Value:    signalValue,
		Source:   signalSource,
	})
	if err != nil {
		return err
	}

	arrow := color.GreenString("%d -> %d", res.ScoreBefore, res.ScoreAfter)
	if res.ScoreAfter < res.ScoreBefore {
		arrow = color.RedString("%d -> %d", res.ScoreBefore, res.ScoreAfter)
	}
	fmt.Printf("%s  score %s  tier %s\n", args[0], arrow, res.Tier)
	if res.Flagged {
		color.Yellow("dampened (x%.2f): %s", res.Multiplier, res.Reason)
	}
	return nil
}
