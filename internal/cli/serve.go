package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trustgate/internal/server"
)

var (
	servePort   int
	serveMaxAge time.Duration
	serveTTL    time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 8370, "HTTP listen port")
	serveCmd.Flags().DurationVar(&serveMaxAge, "snapshot-max-age", time.Minute, "Staleness bound for trust snapshots")
	serveCmd.Flags().DurationVar(&serveTTL, "constraint-ttl", 5*time.Minute, "Constraint set refresh interval (0 disables)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the governance HTTP server",
	Long:  "Runs the trust scorer, decision gate, and evidence chain behind an HTTP JSON API.\nThe constraint set hot-reloads on file change; pending escalation timers are\nrestored from the previous run.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := server.Config{Port: servePort, SnapshotMaxAge: serveMaxAge}

	st, err := buildStack(cfg, serveTTL)
	if err != nil {
		return fmt.Errorf("failed to wire components: %w", err)
	}
	defer st.Close()

	srv := server.New(cfg, st.Deps())

	restored, err := st.scheduler.Restore()
	if err != nil {
		return fmt.Errorf("failed to restore escalations: %w", err)
	}
	if restored > 0 {
		fmt.Fprintf(os.Stderr, "restored %d pending escalation(s)\n", restored)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir, _ := resolveDataDir()
	constraintsPath := resolveConstraintsPath(dir)
	reloader, err := server.NewReloader(st.constraints, []string{constraintsPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	} else {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "trustgate listening on :%d\n", servePort)
	fmt.Fprintf(os.Stderr, "Constraints: %s (hot-reload enabled)\n\n", constraintsPath)

	return srv.Start(ctx)
}
