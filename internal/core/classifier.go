package core

import (
	"fmt"
	"strings"

	"github.com/mikey/bgc-lifecycle/internal/utils"
)

// ClassifierRule maps subject patterns to an event type. Patterns containing
// "*" are globs over the whole subject; anything else is a substring.
type ClassifierRule struct {
	EventType EventType `mapstructure:"event_type"`
	Patterns  []string  `mapstructure:"patterns"`
}

// DefaultClassifierRules is the built-in rule set. Order matters: terminal
// states come first so "your background check is complete" never falls
// through to the submitted rule.
func DefaultClassifierRules() []ClassifierRule {
	return []ClassifierRule{
		{EventType: EventDeactivated, Patterns: []string{
			"*account has been deactivated*",
			"*account deactivated*",
			"*account has been closed*",
			"*no longer eligible to deliver*",
		}},
		{EventType: EventFirstPackage, Patterns: []string{
			"*first delivery*",
			"*first package*",
			"*delivered your first*",
		}},
		{EventType: EventBgcComplete, Patterns: []string{
			"*background check is complete*",
			"*background check complete*",
			"*background check has been completed*",
			"*cleared your background check*",
		}},
		{EventType: EventBgcConsider, Patterns: []string{
			"*pre adverse action*",
			"*background check*consider*",
			"*background check requires review*",
		}},
		{EventType: EventBgcInfoNeeded, Patterns: []string{
			"*more information needed*",
			"*additional information*background check*",
			"*action required*background check*",
			"*background check*needs more information*",
		}},
		{EventType: EventBgcSubmitted, Patterns: []string{
			"*background check*submitted*",
			"*received your background check*",
			"*background check is in progress*",
			"*background check has started*",
		}},
		{EventType: EventAccountCreated, Patterns: []string{
			"*welcome to*",
			"*account has been created*",
			"*verify your email*",
			"*confirm your email*",
		}},
	}
}

type compiledRule struct {
	eventType EventType
	patterns  []string
}

// Classifier maps raw messages to lifecycle event types
type Classifier struct {
	rules []compiledRule
	text  *utils.TextProcessor
}

// NewClassifier compiles the rules once. An empty rule list falls back to
// DefaultClassifierRules.
func NewClassifier(rules []ClassifierRule, text *utils.TextProcessor) (*Classifier, error) {
	if text == nil {
		text = utils.NewTextProcessor(nil)
	}
	if len(rules) == 0 {
		rules = DefaultClassifierRules()
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		et, err := ParseEventType(string(rule.EventType))
		if err != nil {
			return nil, fmt.Errorf("classifier rule %d: %w", i, err)
		}
		cr := compiledRule{eventType: et}
		for _, p := range rule.Patterns {
			normalized := text.NormalizePattern(p)
			if strings.Trim(normalized, "*") == "" {
				return nil, fmt.Errorf("classifier rule %d: pattern %q matches everything", i, p)
			}
			cr.patterns = append(cr.patterns, normalized)
		}
		if len(cr.patterns) == 0 {
			return nil, fmt.Errorf("classifier rule %d (%s) has no patterns", i, et)
		}
		compiled = append(compiled, cr)
	}

	return &Classifier{rules: compiled, text: text}, nil
}

// Classify returns the event type of the first matching rule. An unmatched
// message is a normal outcome and yields false.
func (c *Classifier) Classify(msg RawMessage) (EventType, bool) {
	subject := c.text.NormalizeSubject(msg.Subject)
	if subject == "" {
		return "", false
	}
	for _, rule := range c.rules {
		for _, p := range rule.patterns {
			if matchPattern(p, subject) {
				return rule.eventType, true
			}
		}
	}
	return "", false
}

// Events classifies the messages of one account, dropping unmatched ones
func (c *Classifier) Events(accountEmail string, msgs []RawMessage) []AccountEmailEvent {
	events := make([]AccountEmailEvent, 0, len(msgs))
	for _, msg := range msgs {
		et, ok := c.Classify(msg)
		if !ok {
			continue
		}
		events = append(events, AccountEmailEvent{
			AccountEmail:  accountEmail,
			EventType:     et,
			EventDate:     msg.Date,
			SourceSubject: msg.Subject,
		})
	}
	return events
}

func matchPattern(pattern, subject string) bool {
	if !strings.Contains(pattern, "*") {
		return strings.Contains(subject, pattern)
	}
	return globMatch(pattern, subject)
}

// globMatch matches "*" against any run of characters, including none.
// Greedy with backtracking to the last star.
func globMatch(pattern, s string) bool {
	p, str := 0, 0
	star, mark := -1, 0
	for str < len(s) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = str
			p++
		case p < len(pattern) && pattern[p] == s[str]:
			p++
			str++
		case star >= 0:
			p = star + 1
			mark++
			str = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
