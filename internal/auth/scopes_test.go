package auth

import "testing"

func TestValidateScopes(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		wantErr bool
	}{
		{"empty list", []string{}, false},
		{"author scopes", AuthorScopes(), false},
		{"admin", []string{"admin"}, false},
		{"invalid scope", []string{"modules:read"}, true},
		{"empty string scope", []string{""}, true},
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
		{"exact match", []string{"passwords:manage"}, ScopePasswordsManage, true},
		{"admin grants everything", []string{"admin"}, ScopeBooksManage, true},
		{"resolve implies read", []string{"requests:resolve"}, ScopeRequestsRead, true},
		{"read does not imply resolve", []string{"requests:read"}, ScopeRequestsResolve, false},
		{"unrelated scope", []string{"downloads:read"}, ScopePasswordsManage, false},
		{"no scopes", nil, ScopeDownloadsRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasScope(tt.userScopes, tt.required); got != tt.want {
				t.Errorf("HasScope(%v, %q) = %v, want %v", tt.userScopes, tt.required, got, tt.want)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	if !IsAdmin([]string{"downloads:read", "admin"}) {
		t.Error("IsAdmin should find admin scope")
	}
	if IsAdmin(AuthorScopes()) {
		t.Error("author scopes are not admin")
	}
}
