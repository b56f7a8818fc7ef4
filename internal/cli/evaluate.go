package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/model"
	"github.com/ppiankov/trustgate/internal/server"
)

var (
	evaluateContext []string
	evaluateJSON    bool
)

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringArrayVar(&evaluateContext, "context", nil, "Context field as key=value (repeatable)")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "Print the full decision as JSON")
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <entity-id> <action>",
	Short: "Evaluate a proposed action against the constraint set",
	Long:  "Runs one action through the decision gate and records the decision on the\nevidence chain. Exit code 0 for allow/limit, 2 for escalate, 3 for deny.",
	Args:  cobra.ExactArgs(2),
	RunE:  runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	st, err := buildStack(server.Config{}, 0)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, err := parseContext(evaluateContext)
	if err != nil {
		return err
	}

	core := server.New(server.Config{}, st.Deps())
	dec, err := core.EvaluateAction(&model.ActionRequest{
		EntityID: args[0],
		Action:   args[1],
		Context:  ctx,
	})
	if err != nil {
		return err
	}

	if evaluateJSON {
		out, _ := json.MarshalIndent(dec, "", "  ")
		fmt.Println(string(out))
	} else {
		printDecision(dec)
	}

	switch dec.Outcome {
	case model.Escalate:
		os.Exit(2)
	case model.Deny:
		os.Exit(3)
	}
	return nil
}

func printDecision(dec *model.Decision) {
	outcome := color.GreenString(string(dec.Outcome))
	switch dec.Outcome {
	case model.Deny:
		outcome = color.RedString(string(dec.Outcome))
	case model.Escalate:
		outcome = color.YellowString(string(dec.Outcome))
	case model.Limit:
		outcome = color.CyanString(string(dec.Outcome))
	}

	if dec.Code != "" {
		fmt.Printf("%s  [%s] %s\n", outcome, dec.Code, dec.Reason)
	} else {
		fmt.Printf("%s  %s\n", outcome, dec.Reason)
	}
	fmt.Printf("  entity %s  trust %d (%s)  risk %d\n", dec.EntityID, dec.TrustScore, dec.Tier, dec.RiskScore)
	if dec.ConstraintID != "" {
		fmt.Printf("  constraint %s (set v%s)\n", dec.ConstraintID, dec.ConstraintSet)
	}
	if dec.EscalationID != "" {
		fmt.Printf("  escalation %s  route %s  deadline %s\n",
			dec.EscalationID, dec.EscalationRoute, dec.EscalationDeadline.Format(time.RFC3339))
	}
}

// parseContext turns key=value pairs into typed context fields.
// Numbers and booleans are decoded; everything else stays a string.
func parseContext(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	ctx := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid context field %q, want key=value", pair)
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			ctx[key] = f
		} else if b, err := strconv.ParseBool(raw); err == nil {
			ctx[key] = b
		} else {
			ctx[key] = raw
		}
	}
	return ctx, nil
}
