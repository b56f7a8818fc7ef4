package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/chain"
	"github.com/ppiankov/trustgate/internal/server"
)

var (
	exportMode   string
	exportRedact string
	exportFrom   int64
	exportTo     int64
	exportOut    string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportMode, "mode", chain.ModeFull, "Export mode (full|selective)")
	exportCmd.Flags().StringVar(&exportRedact, "redact", "", "Comma-separated payload fields to redact (selective mode)")
	exportCmd.Flags().Int64Var(&exportFrom, "from", 0, "First sequence number (0 = genesis)")
	exportCmd.Flags().Int64Var(&exportTo, "to", 0, "Last sequence number (0 = tail)")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file (default stdout)")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export evidence chain records for external audit",
	Long:  "Exports a verifiable slice of the chain. Selective mode replaces the named\npayload fields with a redaction marker while hashes and signatures stay\nverifiable against the original content hashes.",
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := buildStack(server.Config{}, 0)
	if err != nil {
		return err
	}
	defer st.Close()

	var redact []string
	if exportRedact != "" {
		redact = strings.Split(exportRedact, ",")
	}

	export, err := st.ledger.ExportRange(exportFrom, exportTo, exportMode, redact)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return err
	}
	if exportOut == "" {
		fmt.Println(string(out))
		return nil
	}
	if err := os.WriteFile(exportOut, append(out, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Fprintf(os.Stderr, "exported %d record(s) to %s\n", len(export.Records), exportOut)
	return nil
}
