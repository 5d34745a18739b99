// Package namespace implements channel and cloak namespace parsing: comparison policies,
// root extraction at configured separators, progressive ancestor lookup and glob matching.
package namespace

import (
	"fmt"
	"strings"
)

// Policy selects how two namespace strings are compared.
type Policy string

const (
	// PolicyRFC1459 folds ASCII letters and the RFC 1459 bracket pairs ([]\^ to {}|~).
	PolicyRFC1459 Policy = "rfc1459"
	// PolicyASCII folds ASCII letters only.
	PolicyASCII Policy = "ascii"
	// PolicyExact compares byte for byte.
	PolicyExact Policy = "exact"
)

// ParsePolicy converts a configuration value into a Policy. An empty string yields fallback.
func ParsePolicy(s string, fallback Policy) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return fallback, nil
	case PolicyRFC1459:
		return PolicyRFC1459, nil
	case PolicyASCII:
		return PolicyASCII, nil
	case PolicyExact:
		return PolicyExact, nil
	default:
		return "", fmt.Errorf("unknown comparison policy %q (must be rfc1459, ascii or exact)", s)
	}
}

// Fold returns the canonical index key for s under the policy.
func (p Policy) Fold(s string) string {
	switch p {
	case PolicyExact:
		return s
	case PolicyASCII:
		return foldBytes(s, false)
	default:
		return foldBytes(s, true)
	}
}

// Equal reports whether a and b name the same namespace under the policy.
func (p Policy) Equal(a, b string) bool {
	return p.Fold(a) == p.Fold(b)
}

func foldBytes(s string, rfc1459 bool) string {
	b := []byte(s)
	for i, c := range b {
		b[i] = foldByte(c, rfc1459)
	}
	return string(b)
}

func foldByte(c byte, rfc1459 bool) byte {
	switch {
	case c >= 'A' && c <= 'Z':
		return c + ('a' - 'A')
	case !rfc1459:
		return c
	case c == '[':
		return '{'
	case c == ']':
		return '}'
	case c == '\\':
		return '|'
	case c == '^':
		return '~'
	}
	return c
}
