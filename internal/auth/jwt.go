// Package auth - jwt.go validates staff bearer tokens. Staff sign-in happens in an
// external identity service that issues HS256 tokens with the shared secret; this
// service only verifies them and reads the subject, email and scopes.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/grendelpress/manuscript-vault/internal/clock"
)

// StaffClaims represents the staff JWT claims structure
type StaffClaims struct {
	Email  string   `json:"email"`
	Role   string   `json:"role,omitempty"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// StaffTokenValidator verifies staff bearer tokens
type StaffTokenValidator struct {
	secret []byte
	issuer string
	now    clock.Clock
}

// NewStaffTokenValidator creates a validator for tokens signed with secret. An empty
// issuer disables the issuer check.
func NewStaffTokenValidator(secret, issuer string, now clock.Clock) *StaffTokenValidator {
	return &StaffTokenValidator{secret: []byte(secret), issuer: issuer, now: now.OrSystem()}
}

// Validate parses and validates a staff JWT
func (v *StaffTokenValidator) Validate(tokenString string) (*StaffClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &StaffClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*StaffClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// GenerateStaffJWT signs a staff token. Used by tooling and tests; production
// tokens come from the identity service.
func GenerateStaffJWT(secret, issuer, subject, email string, scopes []string, expiresIn time.Duration, now time.Time) (string, error) {
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	claims := &StaffClaims{
		Email:  email,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
