// names.go validates project names and the channel and cloak namespace strings that
// projects claim, before anything reaches the registry indexes.
package validation

import (
	"errors"
	"strings"
)

// Default length bounds. A value is valid only while strictly shorter than its bound.
const (
	DefaultProjectNameLength = 50
	DefaultChannelLength     = 50
	DefaultCloakLength       = 63
)

var (
	ErrEmpty             = errors.New("value is empty")
	ErrTooLong           = errors.New("value is too long")
	ErrInvalidCharacters = errors.New("value contains invalid characters")
	ErrNotChannel        = errors.New("value is not a channel name")
	ErrWildcard          = errors.New("value contains wildcard characters")
)

func isPrint(c byte) bool {
	return c >= 0x20 && c < 0x7f
}

// isWord reports whether c may appear in a single space-free token.
func isWord(c byte) bool {
	return isPrint(c) && c != ' '
}

// ValidateProjectName checks that name is printable, has no spaces or line breaks and is
// shorter than maxLen bytes.
func ValidateProjectName(name string, maxLen int) error {
	if name == "" {
		return ErrEmpty
	}
	for i := 0; i < len(name); i++ {
		if !isWord(name[i]) {
			return ErrInvalidCharacters
		}
	}
	if maxLen > 0 && len(name) >= maxLen {
		return ErrTooLong
	}
	return nil
}

// ValidateChannelNamespace checks a channel namespace before it is claimed.
func ValidateChannelNamespace(ns string, maxLen int) error {
	for i := 0; i < len(ns); i++ {
		if !isWord(ns[i]) {
			return ErrInvalidCharacters
		}
	}
	if !strings.HasPrefix(ns, "#") {
		return ErrNotChannel
	}
	if maxLen > 0 && len(ns) >= maxLen {
		return ErrTooLong
	}
	return nil
}

// ValidateCloakNamespace checks an already canonicalized cloak namespace.
func ValidateCloakNamespace(ns string, maxLen int) error {
	if ns == "" {
		return ErrEmpty
	}
	if maxLen > 0 && len(ns) >= maxLen {
		return ErrTooLong
	}
	if strings.ContainsRune(ns, '*') {
		return ErrWildcard
	}
	for i := 0; i < len(ns); i++ {
		if !isWord(ns[i]) {
			return ErrInvalidCharacters
		}
	}
	return nil
}

// ValidateAccountName checks a services account name. Account names follow the project
// name rules without a length bound.
func ValidateAccountName(name string) error {
	return ValidateProjectName(name, 0)
}

// ValidateText checks free text such as marks and registration info, which may hold
// spaces but must stay on one line.
func ValidateText(text string) error {
	if strings.ContainsAny(text, "\r\n") {
		return ErrInvalidCharacters
	}
	return nil
}
