// Package checksum computes the SHA-256 digests recorded for master uploads and for
// every watermarked copy handed to a reader. The digest of a copy is stored in its
// download record so a file found in the wild can be matched to the exact bytes
// that were served.
package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Sum returns the lowercase hex SHA-256 of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()

	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Matches compares two hex digests, ignoring case and surrounding space.
func Matches(actual, expected string) bool {
	a := strings.ToLower(strings.TrimSpace(actual))
	e := strings.ToLower(strings.TrimSpace(expected))
	if len(a) != sha256.Size*2 || len(a) != len(e) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(e)) == 1
}

// VerifySHA256 reports whether the content of reader hashes to expectedChecksum.
func VerifySHA256(reader io.Reader, expectedChecksum string) (bool, error) {
	actualChecksum, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}

	return Matches(actualChecksum, expectedChecksum), nil
}
