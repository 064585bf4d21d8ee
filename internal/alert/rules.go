package alert

import "strings"

// Rule maps a lower-cased text pattern to a result. Exact rules match only the
// whole text, other rules match any substring.
type Rule[T ~string] struct {
	Pattern string
	Exact   bool
	Result  T
}

// Match reports whether text satisfies the rule. text must already be lower-cased.
func (r Rule[T]) Match(text string) bool {
	if r.Exact {
		return text == r.Pattern
	}
	return strings.Contains(text, r.Pattern)
}

// RuleTable is evaluated in order; the first matching rule wins.
type RuleTable[T ~string] []Rule[T]

// First returns the result of the first rule matching text.
func (t RuleTable[T]) First(text string) (T, bool) {
	for _, r := range t {
		if r.Match(text) {
			return r.Result, true
		}
	}
	var zero T
	return zero, false
}

// FirstOfAny walks the table rule by rule and returns the first rule that
// matches any of the texts. Rule order takes precedence over text order.
func (t RuleTable[T]) FirstOfAny(texts []string) (T, bool) {
	for _, r := range t {
		for _, text := range texts {
			if r.Match(text) {
				return r.Result, true
			}
		}
	}
	var zero T
	return zero, false
}

// Classifier holds the classification policy as data.
type Classifier struct {
	// Severity is applied to the raw severity field.
	Severity RuleTable[Severity]
	// ItemSeverity is applied to the contributing factor texts when the raw field did not match.
	ItemSeverity RuleTable[Severity]
	// FallbackSeverity is used when neither table matches.
	FallbackSeverity Severity
	// FallbackStatus is used for unknown raw statuses.
	FallbackStatus StatusKey
}

// DefaultClassifier is the classification policy used by the package level functions.
var DefaultClassifier = Classifier{
	Severity: RuleTable[Severity]{
		{Pattern: "critical", Result: SeverityCritical},
		{Pattern: "major", Result: SeverityMajor},
		{Pattern: "alert", Exact: true, Result: SeverityMajor},
		{Pattern: "minor", Result: SeverityMinor},
		{Pattern: "warning", Result: SeverityMinor},
	},
	ItemSeverity: RuleTable[Severity]{
		{Pattern: "critical", Result: SeverityCritical},
		{Pattern: "major", Result: SeverityMajor},
		{Pattern: "high", Result: SeverityMajor},
	},
	FallbackSeverity: SeverityMinor,
	FallbackStatus:   StatusOpen,
}
