package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/grendelpress/manuscript-vault/internal/apperr"
	"github.com/grendelpress/manuscript-vault/internal/clock"
	"github.com/grendelpress/manuscript-vault/internal/db/models"
)

// DefaultDownloadTokenTTL is the validity of a freshly minted download link.
const DefaultDownloadTokenTTL = 30 * time.Minute

const minTokenKeyLength = 32

// DownloadClaims is the payload of a download token. It is self-contained: no
// server-side state is kept for an issued token.
type DownloadClaims struct {
	SignupID string            `json:"signup_id"`
	BookID   string            `json:"book_id"`
	Format   models.FileFormat `json:"format"`
	jwt.RegisteredClaims
}

// DownloadTokenCodec mints and validates HS256-signed download tokens.
type DownloadTokenCodec struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    clock.Clock
}

// NewDownloadTokenCodec creates a codec. ttl <= 0 uses DefaultDownloadTokenTTL and a
// nil clock uses the system clock.
func NewDownloadTokenCodec(secret, issuer string, ttl time.Duration, now clock.Clock) (*DownloadTokenCodec, error) {
	if len(secret) < minTokenKeyLength {
		return nil, fmt.Errorf("download token secret must be at least %d bytes", minTokenKeyLength)
	}
	if ttl <= 0 {
		ttl = DefaultDownloadTokenTTL
	}
	return &DownloadTokenCodec{key: []byte(secret), issuer: issuer, ttl: ttl, now: now.OrSystem()}, nil
}

// TTL returns the validity window applied by Mint.
func (c *DownloadTokenCodec) TTL() time.Duration {
	return c.ttl
}

// Mint issues a token for one signup, book and format, valid for the codec's TTL.
func (c *DownloadTokenCodec) Mint(signupID, bookID string, format models.FileFormat) (string, time.Time, error) {
	return c.MintWithTTL(signupID, bookID, format, c.ttl)
}

// MintWithTTL issues a token valid for ttl from now.
func (c *DownloadTokenCodec) MintWithTTL(signupID, bookID string, format models.FileFormat, ttl time.Duration) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(ttl)
	claims := &DownloadClaims{
		SignupID: signupID,
		BookID:   bookID,
		Format:   format,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign download token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Validate verifies the signature and expiry of a token. A token whose expiry is
// at or before now fails with apperr.ErrTokenExpired; anything that does not decode
// or verify fails with apperr.ErrTokenMalformed.
func (c *DownloadTokenCodec) Validate(token string) (*DownloadClaims, error) {
	if token == "" {
		return nil, apperr.TokenMalformed(errors.New("empty token"))
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &DownloadClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.TokenExpired()
		}
		return nil, apperr.TokenMalformed(err)
	}

	if claims.SignupID == "" || claims.BookID == "" {
		return nil, apperr.TokenMalformed(errors.New("token is missing signup or book"))
	}
	if claims.Format != models.FormatPDF && claims.Format != models.FormatEPUB {
		return nil, apperr.TokenMalformed(fmt.Errorf("unsupported format %q", claims.Format))
	}
	return claims, nil
}
