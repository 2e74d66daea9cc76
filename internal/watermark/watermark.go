// Package watermark stamps per-recipient identity into PDF and EPUB masters.
//
// Both renderers embed the same footer string, "<email> • <title> • <wmid>", so a
// leaked copy can be traced back to its download record through the watermark id.
package watermark

import (
	"fmt"
	"strings"

	"github.com/grendelpress/manuscript-vault/internal/apperr"
	"github.com/grendelpress/manuscript-vault/internal/db/models"
)

// Separator joins the footer fields.
const Separator = " • "

// Stamp identifies the recipient of one watermarked copy.
type Stamp struct {
	Email       string
	Title       string
	WatermarkID string
}

// Footer renders the identity line shared by every format.
func (s Stamp) Footer() string {
	return strings.Join([]string{s.Email, s.Title, s.WatermarkID}, Separator)
}

// Renderer dispatches to the format specific stamper.
type Renderer struct{}

// NewRenderer returns a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render stamps master in the given format.
func (r *Renderer) Render(format models.FileFormat, master []byte, stamp Stamp) ([]byte, error) {
	switch format {
	case models.FormatPDF:
		return StampPDF(master, stamp)
	case models.FormatEPUB:
		return StampEPUB(master, stamp)
	default:
		return nil, apperr.Render(fmt.Sprintf("unsupported format %q", format), nil)
	}
}
