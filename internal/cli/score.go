package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/model"
	"github.com/ppiankov/trustgate/internal/server"
)

func init() {
	rootCmd.AddCommand(scoreCmd)
}

var scoreCmd = &cobra.Command{
	Use:   "score <entity-id>",
	Short: "Show an entity's trust score and tier",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	st, err := buildStack(server.Config{}, 0)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.engine.Snapshot(args[0], time.Minute)
	if err != nil {
		return err
	}

	tint := color.GreenString
	switch {
	case snap.Tier <= model.TierRestricted:
		tint = color.RedString
	case snap.Tier == model.TierProbation:
		tint = color.YellowString
	}
	fmt.Printf("%s  %s  %s (%s)\n", snap.EntityID, tint("%d", snap.Score), snap.Tier, snap.Tier.Label())
	return nil
}
