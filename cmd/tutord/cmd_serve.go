package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tutorcore/internal/quota"
)

// serveCmd runs the daemon: scheduled jobs plus the resolution pipeline.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tutoring daemon with scheduled maintenance jobs",
	Long: `Keeps the pipeline resident and runs the recurring jobs: nightly
memory ingest and archival sweep, hourly semantic cache purge, and daily
quota rollover. Stops cleanly on SIGINT/SIGTERM.`,
	RunE: runServe,
}

// statusCmd shows a snapshot of the stores behind the pipeline.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline and store status",
	RunE:  runStatus,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.runner.Start(); err != nil {
		return fmt.Errorf("failed to start job scheduler: %w", err)
	}
	defer a.runner.Stop()

	fmt.Println("tutord running; Ctrl-C to stop")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nshutting down")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Printf("database:   %s\n", a.local.Path())
	fmt.Printf("vector ext: %v\n", a.local.HasVectorExt())
	if err := a.fast.Ping(ctx); err == nil {
		fmt.Printf("fast store: ok (%s)\n", a.cfg.FastStore.Addr)
	} else {
		fmt.Println("fast store: in-process fallback")
	}

	stats, err := a.local.CacheStats()
	if err != nil {
		return err
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	fmt.Printf("semantic cache: %d entries across %d scopes\n", total, len(stats))

	hits, misses := a.gateway.Stats()
	fmt.Printf("embedding cache: %d hits / %d misses\n", hits, misses)
	fmt.Printf("pending ledger turns: %d\n", a.ledger.PendingCount())

	for _, resource := range []string{quota.ResourceChatMessages, quota.ResourceRAGQueries, quota.ResourceLargeModelCalls} {
		if limit := a.cfg.Quota.Limits[resource]; limit > 0 {
			fmt.Printf("quota %s: limit %d per %s\n", resource, limit, a.cfg.Quota.Period)
		}
	}
	return nil
}
