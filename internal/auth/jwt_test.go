package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grendelpress/manuscript-vault/internal/clock"
)

const staffSecret = "staff-secret-for-tests"

func TestStaffTokenValidator_Valid(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tok, err := GenerateStaffJWT(staffSecret, "identity", "author-1", "ann@example.com", AuthorScopes(), time.Hour, now)
	require.NoError(t, err)

	v := NewStaffTokenValidator(staffSecret, "identity", clock.Fixed(now.Add(30*time.Minute)))
	claims, err := v.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "author-1", claims.Subject)
	assert.Equal(t, "ann@example.com", claims.Email)
	assert.Contains(t, claims.Scopes, "requests:resolve")
}

func TestStaffTokenValidator_Rejects(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tok, err := GenerateStaffJWT(staffSecret, "identity", "author-1", "ann@example.com", nil, time.Hour, now)
	require.NoError(t, err)

	tests := []struct {
		name string
		v    *StaffTokenValidator
	}{
		{"expired", NewStaffTokenValidator(staffSecret, "identity", clock.Fixed(now.Add(2*time.Hour)))},
		{"wrong secret", NewStaffTokenValidator("other-secret", "identity", clock.Fixed(now))},
		{"wrong issuer", NewStaffTokenValidator(staffSecret, "someone-else", clock.Fixed(now))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.v.Validate(tok)
			assert.Error(t, err)
		})
	}
}

func TestStaffTokenValidator_RequiresSubject(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tok, err := GenerateStaffJWT(staffSecret, "", "", "ann@example.com", nil, time.Hour, now)
	require.NoError(t, err)

	_, err = NewStaffTokenValidator(staffSecret, "", clock.Fixed(now)).Validate(tok)
	assert.Error(t, err)
}
