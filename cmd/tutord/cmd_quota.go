package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var quotaUser string

// quotaCmd reports a user's quota usage for the current period.
var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show a user's quota usage for the current period",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.enforcer.UsageReport(cmd.Context(), quotaUser)
		if err != nil {
			return err
		}
		if len(report) == 0 {
			fmt.Println("no capped resources configured")
			return nil
		}

		sort.Slice(report, func(i, j int) bool { return report[i].Resource < report[j].Resource })
		fmt.Printf("usage for %s (period ends %s):\n", quotaUser, report[0].PeriodEnd.Format("2006-01-02"))
		for _, u := range report {
			fmt.Printf("  %-18s %d / %d\n", u.Resource, u.Used, u.Limit)
		}
		return nil
	},
}

func init() {
	quotaCmd.Flags().StringVarP(&quotaUser, "user", "u", "local", "User ID")
}
