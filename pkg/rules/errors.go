package rules

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a line validation failure.
type ErrorKind int

const (
	KindUndefinedRule ErrorKind = iota + 1
	KindInvalidValue
	KindPatternNotMatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindUndefinedRule:
		return "undefined rule"
	case KindInvalidValue:
		return "invalid value"
	case KindPatternNotMatch:
		return "pattern not matched"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinel errors matched by ValidationError.Is.
var (
	ErrUndefinedRule   = errors.New("undefined rule")
	ErrInvalidValue    = errors.New("invalid value")
	ErrPatternNotMatch = errors.New("pattern not matched")
)

// ErrRecursion is the cause of an InvalidValue raised when a capture group
// dispatches a value to a rule already validating that same value.
var ErrRecursion = errors.New("recursive rule dispatch")

// ValidationError describes why a value failed a rule.
type ValidationError struct {
	Kind ErrorKind

	// Rule is the capture group name or rule key involved.
	Rule string

	// Value is the offending text.
	Value string

	// Pattern is the pattern that was applied, if any.
	Pattern string

	// Err is the nested failure that caused an InvalidValue.
	Err error
}

func (e *ValidationError) Error() string {
	var msg string
	switch e.Kind {
	case KindUndefinedRule:
		msg = fmt.Sprintf("undefined rule %q has been used", e.Rule)
	case KindInvalidValue:
		msg = fmt.Sprintf("group %q has invalid value %q", e.Rule, e.Value)
	case KindPatternNotMatch:
		msg = fmt.Sprintf("pattern %q does not match %q", e.Pattern, e.Value)
	default:
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *ValidationError) Is(target error) bool {
	switch e.Kind {
	case KindUndefinedRule:
		return target == ErrUndefinedRule
	case KindInvalidValue:
		return target == ErrInvalidValue
	case KindPatternNotMatch:
		return target == ErrPatternNotMatch
	}
	return false
}

func undefinedRule(name string) error {
	return &ValidationError{Kind: KindUndefinedRule, Rule: name}
}

func invalidValue(name, value string, cause error) error {
	return &ValidationError{Kind: KindInvalidValue, Rule: name, Value: value, Err: cause}
}

func patternNotMatch(p *pattern, value string) error {
	return &ValidationError{Kind: KindPatternNotMatch, Value: value, Pattern: p.String()}
}
