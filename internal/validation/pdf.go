package validation

import (
	"bytes"
	"fmt"
)

// trailerWindow is how far from the end of the file %%EOF may appear. Writers
// commonly append whitespace or a short incremental-update tail.
const trailerWindow = 1024

// ValidatePDF checks the %PDF- header and the %%EOF end marker. It does not parse
// the document; the renderer reports structural damage at stamp time.
func ValidatePDF(data []byte, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxMasterSize
	}
	if int64(len(data)) > maxSize {
		return fmt.Errorf("pdf size exceeds maximum allowed size of %d bytes", maxSize)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return fmt.Errorf("missing %%PDF- header")
	}

	tail := data
	if len(tail) > trailerWindow {
		tail = tail[len(tail)-trailerWindow:]
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		return fmt.Errorf("missing %%%%EOF trailer")
	}
	return nil
}
