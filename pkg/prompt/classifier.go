package prompt

import (
	"strings"

	"gardener-chat-be/pkg/store"
)

var (
	reflectiveTerms = []string{"pattern", "notice", "insight"}
	suggestiveTerms = []string{"suggest", "try", "consider"}
)

// Classify tags an assistant reply. Reflective wording wins over suggestive wording.
func Classify(content string) store.MessageType {
	lower := strings.ToLower(content)
	if containsAny(lower, reflectiveTerms) {
		return store.MessageInsight
	}
	if containsAny(lower, suggestiveTerms) {
		return store.MessageSuggestion
	}
	return store.MessageText
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
