// Package auth provides the credential primitives: bcrypt hashing of standing and
// temporary passwords, temporary password and watermark id generation, channel
// resolution, the signed download token, and staff bearer token validation.
package auth

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the cost factor for password hashing
	DefaultBcryptCost = 12

	// TemporaryPasswordLength is the length of a generated temporary password
	TemporaryPasswordLength = 12

	// WatermarkIDLength is the length of a per-download watermark identifier
	WatermarkIDLength = 8

	// alphanumeric is the alphabet for generated secrets: easy to read aloud and
	// type, no punctuation or formatting characters.
	alphanumeric = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// HashPassword bcrypt-hashes a plaintext password. cost <= 0 uses DefaultBcryptCost.
func HashPassword(plaintext string, cost int) (string, error) {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether plaintext matches the stored bcrypt hash.
func CheckPassword(storedHash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext)) == nil
}

// GenerateTemporaryPassword returns a fresh 12-character alphanumeric password from
// a cryptographically strong source.
func GenerateTemporaryPassword() (string, error) {
	pw, err := gonanoid.Generate(alphanumeric, TemporaryPasswordLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate temporary password: %w", err)
	}
	return pw, nil
}

// NewWatermarkID returns a fresh 8-character alphanumeric watermark identifier.
func NewWatermarkID() (string, error) {
	id, err := gonanoid.Generate(alphanumeric, WatermarkIDLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate watermark id: %w", err)
	}
	return id, nil
}
