package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	tgmcp "github.com/ppiankov/trustgate/internal/mcp"
	"github.com/ppiankov/trustgate/internal/server"
)

var mcpMaxAge time.Duration

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().DurationVar(&mcpMaxAge, "snapshot-max-age", time.Minute, "Staleness bound for trust snapshots")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs trustgate as an MCP (Model Context Protocol) server over stdio.\nExposes governance tools: evaluate, signal, score, pending, resolve, verify.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := server.Config{SnapshotMaxAge: mcpMaxAge}

	st, err := buildStack(cfg, 5*time.Minute)
	if err != nil {
		return fmt.Errorf("failed to wire components: %w", err)
	}
	defer st.Close()

	srv := tgmcp.New(cfg, st.Deps())

	if restored, err := st.scheduler.Restore(); err == nil && restored > 0 {
		fmt.Fprintf(os.Stderr, "restored %d pending escalation(s)\n", restored)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "trustgate MCP server running on stdio")
	return srv.Run(ctx)
}
