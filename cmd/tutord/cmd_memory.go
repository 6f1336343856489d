package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var memoryUser string

// memoryCmd inspects and manages the long-term memory ledger.
var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage the long-term memory ledger",
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's active memories with importance scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		entries, err := a.local.ActiveMemories(memoryUser)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no active memories")
			return nil
		}

		now := time.Now()
		for _, e := range entries {
			flag := " "
			if e.UserFlagged {
				flag = "*"
			}
			fmt.Printf("%s %.2f  %-12s %s  (%s, accessed %dx)\n",
				flag, a.ledger.Score(e, now), e.Namespace, e.Content, e.ID, e.AccessCount)
		}
		return nil
	},
}

var memoryFlagCmd = &cobra.Command{
	Use:   "flag [id]",
	Short: "Pin a memory against archival",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.local.SetUserFlag(args[0], true); err != nil {
			return err
		}
		fmt.Printf("flagged %s\n", args[0])
		return nil
	},
}

var memoryUnflagCmd = &cobra.Command{
	Use:   "unflag [id]",
	Short: "Unpin a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.local.SetUserFlag(args[0], false); err != nil {
			return err
		}
		fmt.Printf("unflagged %s\n", args[0])
		return nil
	},
}

var memoryRestoreCmd = &cobra.Command{
	Use:   "restore [id]",
	Short: "Bring an archived memory back into the active set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.local.RestoreMemory(args[0]); err != nil {
			return err
		}
		fmt.Printf("restored %s\n", args[0])
		return nil
	},
}

func init() {
	memoryCmd.PersistentFlags().StringVarP(&memoryUser, "user", "u", "local", "User ID")
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryFlagCmd)
	memoryCmd.AddCommand(memoryUnflagCmd)
	memoryCmd.AddCommand(memoryRestoreCmd)
}
