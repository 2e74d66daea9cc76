package auth

import "testing"

func TestResolveChannel(t *testing.T) {
	tests := []struct {
		hint string
		want string
	}{
		{"HWA", "hwa"},
		{"hwa", "hwa"},
		{"ARC", "arc"},
		{"Giveaway", "giveaway"},
		{"Other", "other"},
		{" Hwa ", "hwa"},
		{"", "other"},
		{"newsletter", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			if got := ResolveChannel(tt.hint); got != tt.want {
				t.Errorf("ResolveChannel(%q) = %q, want %q", tt.hint, got, tt.want)
			}
		})
	}
}

func TestValidChannel(t *testing.T) {
	if !ValidChannel("giveaway") {
		t.Error("giveaway should be valid")
	}
	if ValidChannel("HWA") {
		t.Error("stored channels are lower case")
	}
}
