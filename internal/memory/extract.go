package memory

import (
	"regexp"
	"strings"
)

// Fact is one candidate ledger entry extracted from a turn.
type Fact struct {
	Namespace string
	Content   string
}

// Extraction rules: each maps a phrasing pattern to a namespace and a
// content template. Conservative on purpose; the ledger is poisoned far
// more easily than it is starved.
var extractionRules = []struct {
	namespace string
	pattern   *regexp.Regexp
	prefix    string
}{
	{"struggles", regexp.MustCompile(`(?i)\bi (?:don'?t|do not) understand\s+(.{3,80}?)(?:[.,!?]|$)`), "struggles with "},
	{"struggles", regexp.MustCompile(`(?i)\bi(?:'?m| am) (?:confused|stuck|lost) (?:about|on|with)\s+(.{3,80}?)(?:[.,!?]|$)`), "struggles with "},
	{"preferences", regexp.MustCompile(`(?i)\bi (?:prefer|learn better with|learn best (?:with|from))\s+(.{3,80}?)(?:[.,!?]|$)`), "prefers "},
	{"goals", regexp.MustCompile(`(?i)\b(?:my goal is to|i want to|i(?:'?m| am) (?:trying|aiming) to)\s+(.{3,80}?)(?:[.,!?]|$)`), "goal: "},
	{"interests", regexp.MustCompile(`(?i)\bi (?:love|really enjoy|am fascinated by)\s+(.{3,80}?)(?:[.,!?]|$)`), "interested in "},
}

// ExtractFacts pulls ledger candidates out of one user utterance.
func ExtractFacts(userText string) []Fact {
	var facts []Fact
	seen := make(map[string]bool)

	for _, rule := range extractionRules {
		for _, match := range rule.pattern.FindAllStringSubmatch(userText, -1) {
			subject := strings.TrimSpace(match[1])
			if subject == "" {
				continue
			}
			content := rule.prefix + strings.ToLower(subject)
			if seen[content] {
				continue
			}
			seen[content] = true
			facts = append(facts, Fact{Namespace: rule.namespace, Content: content})
		}
	}
	return facts
}
