// Package validation checks master manuscripts and cover images before they are
// stored. A master that passes is one the watermark renderers can open: a PDF with
// a header and trailer, or an EPUB zip whose mimetype and container entries are
// where readers expect them. Validators run before any data is persisted so bad
// uploads are rejected without consuming storage.
package validation

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	// MaxMasterSize is the default cap for a master upload (200MB)
	MaxMasterSize = 200 * 1024 * 1024

	epubMimetype  = "application/epub+zip"
	containerPath = "META-INF/container.xml"
)

// ValidateEPUB checks that data is a well-formed EPUB container: a zip whose
// first entry is an uncompressed "mimetype" holding application/epub+zip, that
// has a META-INF/container.xml, and whose entry names stay inside the archive.
func ValidateEPUB(data []byte, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxMasterSize
	}
	if int64(len(data)) > maxSize {
		return fmt.Errorf("epub size exceeds maximum allowed size of %d bytes", maxSize)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("invalid zip format: %w", err)
	}
	if len(zr.File) == 0 {
		return fmt.Errorf("archive is empty")
	}

	first := zr.File[0]
	if first.Name != "mimetype" {
		return fmt.Errorf("first entry must be mimetype, got %q", first.Name)
	}
	if first.Method != zip.Store {
		return fmt.Errorf("mimetype entry must be stored uncompressed")
	}
	mt, err := readEntry(first, int64(len(epubMimetype))+64)
	if err != nil {
		return fmt.Errorf("read mimetype: %w", err)
	}
	if strings.TrimSpace(string(mt)) != epubMimetype {
		return fmt.Errorf("mimetype must be %s, got %q", epubMimetype, string(mt))
	}

	var totalSize uint64
	hasContainer := false
	for _, f := range zr.File {
		if err := validatePath(f.Name); err != nil {
			return fmt.Errorf("invalid file path in archive: %w", err)
		}
		totalSize += f.UncompressedSize64
		if totalSize > uint64(maxSize)*4 {
			return fmt.Errorf("archive expands beyond %d bytes", uint64(maxSize)*4)
		}
		if f.Name == containerPath {
			hasContainer = true
		}
	}
	if !hasContainer {
		return fmt.Errorf("missing %s", containerPath)
	}

	return nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, limit))
}

// validatePath checks for path traversal attacks
func validatePath(path string) error {
	if strings.Contains(path, "\\") {
		return fmt.Errorf("backslash in path not allowed: %s", path)
	}

	// Normalize path
	path = filepath.Clean(path)

	// Check for absolute paths (Unix-style)
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	// Check for Windows-style absolute paths (e.g. C:/...) even on non-Windows hosts.
	if len(path) >= 3 && path[1] == ':' && path[2] == '/' {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	// Check for path traversal (..)
	if path == ".." || strings.HasPrefix(path, "../") || strings.Contains(path, "/../") {
		return fmt.Errorf("path traversal not allowed: %s", path)
	}

	return nil
}
