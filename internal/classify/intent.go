package classify

import (
	"regexp"
	"strings"
)

// Trigger category names, in evaluation order.
const (
	CategoryPayment  = "payment"
	CategorySetup    = "setup"
	CategoryCommand  = "command"
	CategoryStealth  = "stealth"
	CategoryIdentity = "identity-claim"
	CategoryGreeting = "greeting"
)

// Intent names, by precedence.
const (
	IntentPayment = "payment"
	IntentSetup   = "setup"
	IntentStealth = "stealth"
	IntentCommand = "command"
	IntentGeneral = "general"
)

const (
	aiTextThreshold    = 200 // chars; longer open-ended text goes to the AI
	aiHistoryThreshold = 6   // turns; long conversations go to the AI
)

// Category is a named, ordered set of pattern matchers.
type Category struct {
	Name     string
	Patterns []*regexp.Regexp
}

// Result is the classification of one message.
type Result struct {
	Primary    string   // first matched category in declared order, "" if none
	Matched    []string // all matched categories, declared order
	Intent     string   // payment > setup > stealth > command > general
	RequiresAI bool
	IsComplex  bool
}

var amountPattern = regexp.MustCompile(`(?i)(\$\s?\d+(\.\d{1,2})?|\b\d+(\.\d+)?\s?(usd|usdc|eth|dai|dollars?)\b)`)

// IdentityClaimPattern matches a bare identity handle: 3-20 alphanumerics,
// optionally already carrying the .fkey.id suffix.
var IdentityClaimPattern = regexp.MustCompile(`^[a-zA-Z0-9]{3,20}(\.fkey\.id)?$`)

func builtinCategories() []Category {
	return []Category{
		{Name: CategoryPayment, Patterns: compile(
			`(?i)\bpayment\s+link\b`,
			`(?i)\b(create|make|generate|get)\b.*\blink\b`,
			`(?i)\b(pay|send|request)\b.*\d`,
			`(?i)\b(balance|earnings|received)\b`,
		)},
		{Name: CategorySetup, Patterns: compile(
			`(?i)\bset\s?up\b`,
			`(?i)\bget\s+started\b`,
			`(?i)\b(onboard|register|sign\s?up)\b`,
			`(?i)\b(no|don'?t\s+have\s+an?)\s+fkey\b`,
			`(?i)\bhow\s+do\s+i\s+(start|begin)\b`,
		)},
		{Name: CategoryCommand, Patterns: compile(
			`^/\w+`,
		)},
		{Name: CategoryStealth, Patterns: compile(
			`(?i)\bstealth\b`,
			`(?i)\bprivacy\b`,
			`(?i)\bprivate\s+(address|payment)\b`,
			`(?i)\bscan\b`,
			`(?i)\banonymous\b`,
		)},
		{Name: CategoryIdentity, Patterns: []*regexp.Regexp{IdentityClaimPattern}},
		{Name: CategoryGreeting, Patterns: compile(
			`(?i)^(hi|hey|hello|gm|yo|sup|howdy|greetings)\b`,
		)},
	}
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// IntentClassifier evaluates trimmed message text against its categories in
// fixed declared order. First matched category wins as Primary; that tie-break
// is part of the contract, not an iteration accident.
type IntentClassifier struct {
	categories []Category
}

func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{categories: builtinCategories()}
}

// Classify runs the ordered match. historyLen is the current conversation
// history length, used for the AI-escalation signal.
func (ic *IntentClassifier) Classify(text string, historyLen int) Result {
	trimmed := strings.TrimSpace(text)

	var res Result
	for _, cat := range ic.categories {
		for _, p := range cat.Patterns {
			if p.MatchString(trimmed) {
				res.Matched = append(res.Matched, cat.Name)
				if res.Primary == "" {
					res.Primary = cat.Name
				}
				break
			}
		}
	}

	res.Intent = deriveIntent(res.Matched)
	res.RequiresAI = len(trimmed) > aiTextThreshold || res.Primary == "" || historyLen > aiHistoryThreshold
	res.IsComplex = amountPattern.MatchString(trimmed) ||
		contains(res.Matched, CategoryPayment) ||
		contains(res.Matched, CategoryStealth)
	return res
}

// HasAmount reports whether the text carries a currency amount.
func HasAmount(text string) bool { return amountPattern.MatchString(text) }

// ExtractAmount returns the first currency amount in the text, or "".
func ExtractAmount(text string) string {
	m := amountPattern.FindString(text)
	return strings.TrimSpace(m)
}

func deriveIntent(matched []string) string {
	switch {
	case contains(matched, CategoryPayment):
		return IntentPayment
	case contains(matched, CategorySetup):
		return IntentSetup
	case contains(matched, CategoryStealth):
		return IntentStealth
	case contains(matched, CategoryCommand):
		return IntentCommand
	default:
		return IntentGeneral
	}
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
