package auth

import (
	"reflect"
	"testing"
)

func TestValidateScopes(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		wantErr bool
	}{
		{"empty", nil, false},
		{"single valid", []string{"project:admin"}, false},
		{"all valid", []string{"project:auspex", "project:hooks", "accounts:write", "admin"}, false},
		{"one invalid", []string{"project:admin", "modules:read"}, true},
		{"empty string", []string{""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScopes(tt.scopes)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScopes(%v) error = %v, wantErr %v", tt.scopes, err, tt.wantErr)
			}
		})
	}
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		name       string
		userScopes []string
		required   Scope
		want       bool
	}{
		{"exact match", []string{"project:hooks"}, ScopeHooks, true},
		{"no scopes", nil, ScopeHooks, false},
		{"admin wildcard", []string{"admin"}, ScopeAccountsWrite, true},
		{"project admin implies auspex", []string{"project:admin"}, ScopeProjectAuspex, true},
		{"auspex does not imply admin", []string{"project:auspex"}, ScopeProjectAdmin, false},
		{"hooks does not imply accounts", []string{"project:hooks"}, ScopeAccountsWrite, false},
		{"project admin is not service admin", []string{"project:admin"}, ScopeAdmin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasScope(tt.userScopes, tt.required); got != tt.want {
				t.Errorf("HasScope(%v, %q) = %v, want %v", tt.userScopes, tt.required, got, tt.want)
			}
		})
	}
}

func TestHasAnyScope(t *testing.T) {
	tests := []struct {
		name     string
		user     []string
		required []Scope
		want     bool
	}{
		{"one of two", []string{"project:hooks"}, []Scope{ScopeAccountsWrite, ScopeHooks}, true},
		{"none", []string{"project:auspex"}, []Scope{ScopeAccountsWrite, ScopeHooks}, false},
		{"empty required", []string{"admin"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAnyScope(tt.user, tt.required); got != tt.want {
				t.Errorf("HasAnyScope(%v, %v) = %v, want %v", tt.user, tt.required, got, tt.want)
			}
		})
	}
}

func TestHasAllScopes(t *testing.T) {
	tests := []struct {
		name     string
		user     []string
		required []Scope
		want     bool
	}{
		{"all present", []string{"project:hooks", "accounts:write"}, []Scope{ScopeAccountsWrite, ScopeHooks}, true},
		{"one missing", []string{"project:hooks"}, []Scope{ScopeAccountsWrite, ScopeHooks}, false},
		{"admin covers all", []string{"admin"}, AllScopes(), true},
		{"empty required", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAllScopes(tt.user, tt.required); got != tt.want {
				t.Errorf("HasAllScopes(%v, %v) = %v, want %v", tt.user, tt.required, got, tt.want)
			}
		})
	}
}

func TestExpandScopes(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		want   []string
	}{
		{"none", nil, []string{}},
		{"project admin", []string{"project:admin"}, []string{"project:admin", "project:auspex"}},
		{"admin", []string{"admin"}, []string{"project:admin", "project:auspex", "project:hooks", "accounts:write", "admin"}},
		{"unknown dropped", []string{"bogus", "project:hooks"}, []string{"project:hooks"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandScopes(tt.scopes); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandScopes(%v) = %v, want %v", tt.scopes, got, tt.want)
			}
		})
	}
}

func TestValidateScopeString(t *testing.T) {
	tests := []struct {
		scope   string
		wantErr bool
	}{
		{"project:admin", false},
		{"admin", false},
		{"accounts:write", false},
		{"invalid", true},
		{"", true},
		{"project:delete", true},
	}
	for _, tt := range tests {
		t.Run(tt.scope, func(t *testing.T) {
			err := ValidateScopeString(tt.scope)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScopeString(%q) error = %v, wantErr %v", tt.scope, err, tt.wantErr)
			}
		})
	}
}

func TestAllScopesUnique(t *testing.T) {
	seen := make(map[Scope]bool)
	for _, sc := range AllScopes() {
		if seen[sc] {
			t.Errorf("duplicate scope in AllScopes(): %q", sc)
		}
		seen[sc] = true
	}
}
