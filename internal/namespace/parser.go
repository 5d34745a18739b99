package namespace

import "strings"

// DefaultSeparators is used when no separator set is configured.
const DefaultSeparators = "-"

// Parser splits channel identifiers into namespace components.
type Parser struct {
	separators string
	policy     Policy
}

// NewParser creates a parser for the given separator set. An empty set means DefaultSeparators.
func NewParser(separators string, policy Policy) *Parser {
	if separators == "" {
		separators = DefaultSeparators
	}
	if policy == "" {
		policy = PolicyRFC1459
	}
	return &Parser{separators: separators, policy: policy}
}

// Separators returns the configured separator set.
func (p *Parser) Separators() string { return p.separators }

// Policy returns the comparison policy used for channel namespaces.
func (p *Parser) Policy() Policy { return p.policy }

func (p *Parser) isSeparator(c byte) bool {
	return strings.IndexByte(p.separators, c) >= 0
}

// TrimLast drops the last separator-delimited component of s. A separator in the
// first position never counts, so "#-foo" has nothing left to trim.
func (p *Parser) TrimLast(s string) (string, bool) {
	for i := len(s) - 1; i > 0; i-- {
		if p.isSeparator(s[i]) {
			return s[:i], true
		}
	}
	return s, false
}

// Root returns the shortest ancestor of s, the value that TrimLast converges on.
func (p *Parser) Root(s string) string {
	for i := 1; i < len(s); i++ {
		if p.isSeparator(s[i]) {
			return s[:i]
		}
	}
	return s
}

// IsRoot reports whether s is already its own root.
func (p *Parser) IsRoot(s string) bool {
	return p.Root(s) == s
}

// Walk tests s and then each progressively shorter ancestor against lookup and returns
// the first candidate lookup accepts. When nothing matches it returns s and false.
func (p *Parser) Walk(s string, lookup func(candidate string) bool) (string, bool) {
	candidate := s
	for {
		if lookup(candidate) {
			return candidate, true
		}
		next, ok := p.TrimLast(candidate)
		if !ok {
			return s, false
		}
		candidate = next
	}
}

// CanonicalCloak strips the trailing run of '/' and '*' from a cloak namespace in one pass.
// Cloak lookups never walk ancestors.
func CanonicalCloak(s string) string {
	return strings.TrimRight(s, "/*")
}
