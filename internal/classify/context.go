// Package classify decides whether a message deserves a reply and what the
// user is asking for. Context classification gates group chatter; intent
// classification runs ordered trigger categories over the text.
package classify

import (
	"regexp"
	"strings"
)

// ContextDecision is the outcome of the group/DM gate.
type ContextDecision struct {
	IsGroup     bool
	Mentioned   bool
	ShouldReply bool
}

// ContextClassifier suppresses group messages that neither mention the agent
// nor match an invocation pattern. One-to-one conversations always proceed.
type ContextClassifier struct {
	handles    []string // lowercase names/handles the agent answers to
	invocation []*regexp.Regexp
}

var defaultInvocation = []*regexp.Regexp{
	regexp.MustCompile(`^/\w+`),
	regexp.MustCompile(`(?i)\bpayment\s+link\b`),
	regexp.MustCompile(`(?i)\bpay\b.*\$\s?\d`),
	regexp.MustCompile(`(?i)\bstealth\s+address\b`),
}

func NewContextClassifier(handles []string) *ContextClassifier {
	lower := make([]string, 0, len(handles))
	for _, h := range handles {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			lower = append(lower, h)
		}
	}
	return &ContextClassifier{handles: lower, invocation: defaultInvocation}
}

// Decide applies the gate. Suppression in groups is a hard rule, not a
// heuristic: no mention and no invocation pattern means no reply.
func (c *ContextClassifier) Decide(text string, isGroup bool) ContextDecision {
	d := ContextDecision{IsGroup: isGroup}

	lower := strings.ToLower(text)
	for _, h := range c.handles {
		if strings.Contains(lower, h) {
			d.Mentioned = true
			break
		}
	}

	if !isGroup {
		d.ShouldReply = true
		return d
	}
	if d.Mentioned {
		d.ShouldReply = true
		return d
	}
	trimmed := strings.TrimSpace(text)
	for _, re := range c.invocation {
		if re.MatchString(trimmed) {
			d.ShouldReply = true
			return d
		}
	}
	return d
}
