// Package auth - scopes.go defines the privilege strings carried by operator tokens and
// service keys, and the HasScope family of helpers used by the HTTP middleware.
package auth

import (
	"errors"
	"fmt"
)

// Scope represents a privilege
type Scope string

const (
	// Project command privileges. These are the strings commands.Source.Has checks.
	ScopeProjectAdmin  Scope = "project:admin"  // REGISTER, DROP, CHANNEL, CLOAK, CONTACT, MARK, SET
	ScopeProjectAuspex Scope = "project:auspex" // INFO, LIST, AUDIT, HELP and hidden contacts

	// Service-to-service privileges
	ScopeHooks         Scope = "project:hooks"  // channel registration, claim and info hooks
	ScopeAccountsWrite Scope = "accounts:write" // account mirror updates

	// Admin scope (wildcard - all permissions, including reload and export)
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeProjectAdmin,
		ScopeProjectAuspex,
		ScopeHooks,
		ScopeAccountsWrite,
		ScopeAdmin,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// HasScope checks if a caller has a required scope.
// admin grants everything and project:admin grants project:auspex.
func HasScope(userScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range userScopes {
		if scope == requiredStr || scope == string(ScopeAdmin) {
			return true
		}
		if required == ScopeProjectAuspex && scope == string(ScopeProjectAdmin) {
			return true
		}
	}

	return false
}

// HasAnyScope checks if a caller has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if a caller has all of the required scopes
func HasAllScopes(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(userScopes, required) {
			return false
		}
	}
	return true
}

// ExpandScopes returns the explicit privilege list implied by scopes, for handing to
// code that checks exact strings.
func ExpandScopes(scopes []string) []string {
	out := make([]string, 0, len(AllScopes()))
	for _, s := range AllScopes() {
		if HasScope(scopes, s) {
			out = append(out, string(s))
		}
	}
	return out
}

// ValidateScopeString validates a single scope string
func ValidateScopeString(scope string) error {
	if !ValidScopes()[scope] {
		return errors.New("invalid scope")
	}
	return nil
}
