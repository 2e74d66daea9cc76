package validation

import (
	"bytes"
	"testing"
)

func TestValidateCover(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpeg := []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")

	tests := []struct {
		name    string
		data    []byte
		wantExt string
		wantErr bool
	}{
		{"png", png, ".png", false},
		{"jpeg", jpeg, ".jpg", false},
		{"text", []byte("not an image"), "", true},
		{"empty", nil, "", true},
		{"too large", append(append([]byte{}, png...), bytes.Repeat([]byte{0}, MaxCoverSize)...), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := ValidateCover(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCover() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ext != tt.wantExt {
				t.Errorf("ValidateCover() ext = %q, want %q", ext, tt.wantExt)
			}
		})
	}
}

func TestCoverContentType(t *testing.T) {
	tests := map[string]string{
		"book-1/cover-abc.jpg":  "image/jpeg",
		"book-1/cover-abc.PNG":  "image/png",
		"book-1/cover-abc.webp": "image/webp",
		"book-1/cover-abc.gif":  "image/gif",
		"book-1/cover-abc.svg":  "",
		"book-1/cover":          "",
	}
	for key, want := range tests {
		if got := CoverContentType(key); got != want {
			t.Errorf("CoverContentType(%q) = %q, want %q", key, got, want)
		}
	}
}
