package validation

import (
	"fmt"
	"net/http"
	"path"
	"strings"
)

// MaxCoverSize caps cover uploads (10MB)
const MaxCoverSize = 10 * 1024 * 1024

var coverTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ValidateCover sniffs the image type of a cover upload and returns the file
// extension to store it under.
func ValidateCover(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("cover is empty")
	}
	if len(data) > MaxCoverSize {
		return "", fmt.Errorf("cover size exceeds maximum allowed size of %d bytes", MaxCoverSize)
	}
	ct := http.DetectContentType(data)
	ext, ok := coverTypes[ct]
	if !ok {
		return "", fmt.Errorf("unsupported cover type %s", ct)
	}
	return ext, nil
}

// CoverContentType returns the MIME type for a stored cover key, or "" when the
// extension is not one ValidateCover produces.
func CoverContentType(key string) string {
	ext := strings.ToLower(path.Ext(key))
	for ct, e := range coverTypes {
		if e == ext {
			return ct
		}
	}
	return ""
}
