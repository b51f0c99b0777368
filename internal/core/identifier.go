package core

import (
	"fmt"
	"regexp"
	"strings"
)

// IdentifierPolicy decides which table and column names are accepted.
//
// Quoting makes any name syntactically safe inside a statement. It is not an
// authorization boundary: callers may still name any table the database role
// can reach.
type IdentifierPolicy string

const (
	// PolicyQuote accepts any non-empty name and quotes it.
	PolicyQuote IdentifierPolicy = "quote"
	// PolicyStrict accepts only plain names of at most 63 bytes.
	PolicyStrict IdentifierPolicy = "strict"
)

// maxIdentifierLen is PostgreSQL's NAMEDATALEN - 1.
const maxIdentifierLen = 63

var plainIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ParseIdentifierPolicy maps a configuration value to a policy.
// An empty value selects PolicyQuote.
func ParseIdentifierPolicy(s string) (IdentifierPolicy, error) {
	switch IdentifierPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyQuote:
		return PolicyQuote, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown identifier policy %q", s)
	}
}

// Quote returns name as a delimited identifier, or a *ValidationError when
// the policy rejects it.
func (p IdentifierPolicy) Quote(name string) (string, error) {
	if name == "" {
		return "", &ValidationError{Row: -1, Reason: "identifier must not be empty"}
	}
	if p == PolicyStrict {
		if len(name) > maxIdentifierLen || !plainIdentifier.MatchString(name) {
			return "", &ValidationError{Row: -1, Field: name, Reason: fmt.Sprintf("invalid identifier %q", name)}
		}
	}
	return quoteIdentifier(name), nil
}

// quoteIdentifier wraps name in double quotes, doubling embedded quotes.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
