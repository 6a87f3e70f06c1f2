package memory

import (
	"strings"
)

// Keyword lists for the sentiment heuristic. This is a fixed wordlist, not a
// model, and the label it produces is advisory.
var (
	positiveWords = []string{
		"great", "good", "awesome", "excellent", "thanks", "thank you",
		"perfect", "love", "happy", "nice", "amazing", "helpful",
	}
	negativeWords = []string{
		"bad", "terrible", "awful", "hate", "angry", "frustrated",
		"disappointed", "problem", "issue", "broken", "wrong", "worse",
	}
)

// AnalyzeSentiment labels a message positive, negative or neutral based on
// keyword counts.
func AnalyzeSentiment(message string) string {
	lower := strings.ToLower(message)

	var positive, negative int
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			positive++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			negative++
		}
	}

	switch {
	case positive > negative:
		return "positive"
	case negative > positive:
		return "negative"
	default:
		return "neutral"
	}
}
