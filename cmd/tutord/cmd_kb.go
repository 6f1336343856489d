package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tutorcore/internal/store"
)

var (
	kbScope string
	kbDoc   string
	kbTitle string
	kbTopK  int
)

// kbCmd manages the retrieval knowledge base.
var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the course knowledge base",
}

var kbAddCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Index a document into a scope",
	Long: `Splits a text file into paragraph chunks, embeds them, and indexes
them under the given scope.

Example:
  tutord kb add --scope course:cs101 --title "Recursion notes" notes/recursion.md`,
	Args: cobra.ExactArgs(1),
	RunE: runKBAdd,
}

var kbSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search a scope's indexed chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKBSearch,
}

var kbCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the chunk count for a scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		n, err := a.local.KnowledgeCount(kbScope)
		if err != nil {
			return err
		}
		fmt.Printf("%d chunks in %s\n", n, kbScope)
		return nil
	},
}

func init() {
	kbCmd.PersistentFlags().StringVarP(&kbScope, "scope", "s", "general", "Knowledge scope")
	kbAddCmd.Flags().StringVar(&kbDoc, "doc", "", "Document ID (defaults to the file name)")
	kbAddCmd.Flags().StringVar(&kbTitle, "title", "", "Document title")
	kbSearchCmd.Flags().IntVarP(&kbTopK, "top", "k", 3, "Number of results")

	kbCmd.AddCommand(kbAddCmd)
	kbCmd.AddCommand(kbSearchCmd)
	kbCmd.AddCommand(kbCountCmd)
}

func runKBAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	docID := kbDoc
	if docID == "" {
		docID = filepath.Base(args[0])
	}
	title := kbTitle
	if title == "" {
		title = docID
	}

	chunks := splitParagraphs(string(data))
	if len(chunks) == 0 {
		return fmt.Errorf("no content in %s", args[0])
	}

	vectors, err := a.gateway.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}

	for i, content := range chunks {
		if _, err := a.local.AddKnowledgeChunk(store.KnowledgeChunk{
			Scope:      kbScope,
			DocumentID: docID,
			Title:      title,
			Content:    content,
			Embedding:  vectors[i],
		}); err != nil {
			return err
		}
	}
	fmt.Printf("indexed %d chunks from %s into %s\n", len(chunks), docID, kbScope)
	return nil
}

func runKBSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	query := strings.Join(args, " ")
	vec, err := a.gateway.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := a.local.SearchKnowledge(kbScope, vec, kbTopK)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, m := range matches {
		fmt.Printf("%.3f  [%s] %s\n    %s\n", m.Score, m.DocumentID, m.Title, firstLine(m.Content))
	}
	return nil
}

// splitParagraphs chunks text on blank lines, dropping tiny fragments.
func splitParagraphs(text string) []string {
	var chunks []string
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if len(part) >= 20 {
			chunks = append(chunks, part)
		}
	}
	return chunks
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
