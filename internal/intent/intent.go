// Package intent classifies user queries into the closed set of handling
// categories the pipeline routes on. Classification never surfaces to the
// user: an unavailable classifier silently downgrades to RAG handling.
package intent

import "fmt"

// Intent is one of the four handling categories. The set is closed; adding
// a category means teaching the router what to do with it first.
type Intent int

const (
	// IntentRAG routes to document retrieval and grounded generation.
	IntentRAG Intent = iota

	// IntentConversational routes to direct generation without retrieval.
	IntentConversational

	// IntentSessionMemory routes to the current session's history.
	IntentSessionMemory

	// IntentPlatformAction routes to platform command handling.
	IntentPlatformAction
)

// String returns the wire name of the intent.
func (i Intent) String() string {
	switch i {
	case IntentRAG:
		return "rag"
	case IntentConversational:
		return "conversational"
	case IntentSessionMemory:
		return "session_memory"
	case IntentPlatformAction:
		return "platform_action"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// ParseIntent maps a wire name back to an Intent.
func ParseIntent(s string) (Intent, error) {
	switch s {
	case "rag":
		return IntentRAG, nil
	case "conversational":
		return IntentConversational, nil
	case "session_memory":
		return IntentSessionMemory, nil
	case "platform_action":
		return IntentPlatformAction, nil
	default:
		return IntentRAG, fmt.Errorf("unknown intent: %q", s)
	}
}

// Classification is the classifier's full verdict for one query.
type Classification struct {
	Intent     Intent
	Confidence float64

	// NeedsClarification is set when the top two categories scored within
	// the ambiguity threshold of each other.
	NeedsClarification bool

	// Fallback is set when classification could not run and the default
	// intent was applied. Reason records why, for logs only.
	Fallback bool
	Reason   string
}
