package actions

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bizpilot/bizpilot/internal/domain"
)

// Intent detection maps chat messages onto action templates with a keyword
// heuristic. Like sentiment analysis, this is approximate: it catches the
// common phrasings, nothing more. The reasoning engine can still propose
// actions through its own tool calls.

var amountPattern = regexp.MustCompile(`\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)

// DetectIntent inspects a message for a risky business action. The second
// return value reports whether an action was detected.
func DetectIntent(message string) (*domain.BusinessAction, bool) {
	lower := strings.ToLower(message)

	amount, hasAmount := extractAmount(lower)

	switch {
	case hasAmount && strings.Contains(lower, "budget") && containsAny(lower, "increase", "raise", "boost", "bump"):
		return IncreaseAdBudget(amount, ""), true

	case hasAmount && strings.Contains(lower, "invoice") && containsAny(lower, "create", "send", "issue", "bill"):
		return CreateInvoice(extractClient(message), amount, message), true

	case hasAmount && strings.Contains(lower, "goal") && containsAny(lower, "set", "target", "aim"):
		return SetGoal(detectGoalType(lower), amount, detectTimeframe(lower)), true
	}

	return nil, false
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func extractAmount(s string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	raw := strings.ReplaceAll(m[1], ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var clientPattern = regexp.MustCompile(`(?i)\bfor\s+([A-Z][A-Za-z0-9&. ]{1,40}?)(?:\s+for|\s*[,.$]|$)`)

func extractClient(message string) string {
	m := clientPattern.FindStringSubmatch(message)
	if m == nil {
		return "unspecified"
	}
	return strings.TrimSpace(m[1])
}

func detectGoalType(lower string) string {
	switch {
	case strings.Contains(lower, "revenue"):
		return "revenue"
	case strings.Contains(lower, "roas") || strings.Contains(lower, "marketing"):
		return "marketing"
	case strings.Contains(lower, "project"):
		return "projects"
	default:
		return "revenue"
	}
}

func detectTimeframe(lower string) string {
	switch {
	case strings.Contains(lower, "quarter"):
		return "quarterly"
	case strings.Contains(lower, "year"):
		return "yearly"
	case strings.Contains(lower, "week"):
		return "weekly"
	default:
		return "monthly"
	}
}
