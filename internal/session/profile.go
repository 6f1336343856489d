package session

import (
	"regexp"
	"strings"
)

// Pattern rules for profile extraction. Deliberately conservative: a missed
// detection costs nothing, a wrong one pollutes every later prompt.
var (
	namePattern = regexp.MustCompile(`(?i)\b(?:my name is|i'?m called|call me)\s+([A-Z][a-z]+)`)
	rolePattern = regexp.MustCompile(`(?i)\bi(?:'?m| am)\s+an?\s+([a-z]+(?:\s[a-z]+)?\s(?:student|teacher|major|engineer|nurse|developer))\b`)
	interest    = regexp.MustCompile(`(?i)\bi(?:'?m| am)?\s*(?:really\s+)?(?:interested in|love|enjoy|like studying)\s+([a-z][a-z\s]{2,30}?)(?:[.,!?]|$)`)
)

// ExtractProfile scans user messages for profile signals and merges them
// into the existing profile. Existing non-empty fields win; interests
// accumulate without duplicates.
func ExtractProfile(existing Profile, messages []Message) Profile {
	merged := existing
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}

		if merged.Name == "" {
			if m := namePattern.FindStringSubmatch(msg.Content); m != nil {
				merged.Name = m[1]
			}
		}
		if merged.Role == "" {
			if m := rolePattern.FindStringSubmatch(msg.Content); m != nil {
				merged.Role = strings.TrimSpace(strings.ToLower(m[1]))
			}
		}
		if m := interest.FindStringSubmatch(msg.Content); m != nil {
			candidate := strings.TrimSpace(strings.ToLower(m[1]))
			if candidate != "" && !containsString(merged.Interests, candidate) {
				merged.Interests = append(merged.Interests, candidate)
			}
		}
	}
	return merged
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Render formats the profile for inclusion in a prompt; empty profiles
// render to the empty string.
func (p Profile) Render() string {
	var parts []string
	if p.Name != "" {
		parts = append(parts, "Name: "+p.Name)
	}
	if p.Role != "" {
		parts = append(parts, "Role: "+p.Role)
	}
	if len(p.Interests) > 0 {
		parts = append(parts, "Interests: "+strings.Join(p.Interests, ", "))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Student profile:\n" + strings.Join(parts, "\n")
}

// Empty reports whether no profile signal has been detected.
func (p Profile) Empty() bool {
	return p.Name == "" && p.Role == "" && len(p.Interests) == 0
}
