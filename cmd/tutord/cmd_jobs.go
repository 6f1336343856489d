package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// One-shot versions of the scheduled jobs, for cron-less deployments and
// operational replays.

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one memory ingest batch now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.runner.RunIngest(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("ingest complete")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the memory archival sweep now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.runner.RunSweep(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("sweep complete")
		return nil
	},
}

var rolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Drop elapsed-period quota counters now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.runner.RunRollover(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("rollover complete")
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop expired semantic cache entries now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.runner.RunCachePurge(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("purge complete")
		return nil
	},
}
