package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tutorcore/internal/pipeline"
)

var (
	askUser         string
	askConversation string
	askScope        string
	askHighStakes   bool
)

// askCmd resolves one question through the tier ladder.
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Resolve one question through the answer pipeline",
	Long: `Runs a single question through the full turn flow: quota gate, intent
classification, knowledge availability check, and tier resolution.

Example:
  tutord ask --user alice --scope course:cs101 "explain recursion"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askUser, "user", "u", "local", "User ID")
	askCmd.Flags().StringVar(&askConversation, "conversation", "default", "Conversation ID")
	askCmd.Flags().StringVarP(&askScope, "scope", "s", "general", "Cache/retrieval scope")
	askCmd.Flags().BoolVar(&askHighStakes, "high-stakes", false, "Route generation straight to the large model")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.pipeline.Process(ctx, pipeline.TurnRequest{
		UserID:         askUser,
		ConversationID: askConversation,
		Query:          strings.Join(args, " "),
		Scope:          askScope,
		HighStakes:     askHighStakes,
	})
	if err != nil {
		return err
	}

	if res.Denied != nil {
		fmt.Printf("You've used %d of %d %s this period.\n%s\n",
			res.Denied.CurrentUsage, res.Denied.Limit, res.Denied.ExceededResource, res.Denied.SuggestedAction)
		return nil
	}

	fmt.Println(res.Answer)
	if verbose {
		fmt.Printf("\n[tier=%s intent=%s cost=$%.6f", res.Tier, res.Intent, res.EstimatedCost)
		if res.NeedsClarification {
			fmt.Print(" needs-clarification")
		}
		fmt.Println("]")
	}
	return nil
}
