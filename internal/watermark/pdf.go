package watermark

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/grendelpress/manuscript-vault/internal/apperr"
)

const (
	footerFont     = "Helvetica"
	footerPoints   = 9
	footerBaseline = 20.0
	footerOpacity  = 0.65
	footerFill     = "#333333"
	licenseePrefix = "GP Stamped" + Separator
)

func init() {
	// pdfcpu otherwise creates a user config directory on first use.
	api.DisableConfigDir()
}

func footerDescription() string {
	return fmt.Sprintf(
		"fontname:%s, points:%d, scalefactor:1 abs, rotation:0, opacity:%.2f, fillcolor:%s, position:bc, offset:0 %.2f",
		footerFont, footerPoints, footerOpacity, footerFill, footerBaseline,
	)
}

// footerWatermarks builds one watermark per page. pdfcpu anchors each instance to
// the bottom center of its own page, so mixed page sizes center independently.
func footerWatermarks(footer string, pageCount int) (map[int]*model.Watermark, error) {
	wms := make(map[int]*model.Watermark, pageCount)
	for page := 1; page <= pageCount; page++ {
		wm, err := api.TextWatermark(footer, footerDescription(), true, false, types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		wms[page] = wm
	}
	return wms, nil
}

// pdfProperties lists the info dictionary entries. pdfcpu rewrites Producer on
// every write, so the recipient goes into Author and Creator as well.
func pdfProperties(stamp Stamp) map[string]string {
	return map[string]string{
		"Title":       stamp.Title,
		"Author":      stamp.Email,
		"Creator":     licenseePrefix + stamp.Email,
		"Licensee":    licenseePrefix + stamp.Email,
		"WatermarkID": stamp.WatermarkID,
	}
}

// StampPDF draws the footer centered near the bottom of every page and records the
// recipient in the document info dictionary. A document without pages only gets its
// metadata.
func StampPDF(master []byte, stamp Stamp) ([]byte, error) {
	conf := model.NewDefaultConfiguration()

	dims, err := api.PageDims(bytes.NewReader(master), conf)
	if err != nil {
		return nil, apperr.Render("failed to read pdf page geometry", err)
	}

	doc := master
	if len(dims) > 0 {
		wms, err := footerWatermarks(stamp.Footer(), len(dims))
		if err != nil {
			return nil, apperr.Render("failed to build pdf footer", err)
		}
		var stamped bytes.Buffer
		if err := api.AddWatermarksMap(bytes.NewReader(doc), &stamped, wms, model.NewDefaultConfiguration()); err != nil {
			return nil, apperr.Render("failed to stamp pdf", err)
		}
		doc = stamped.Bytes()
	}

	var out bytes.Buffer
	if err := api.AddProperties(bytes.NewReader(doc), &out, pdfProperties(stamp), model.NewDefaultConfiguration()); err != nil {
		return nil, apperr.Render("failed to write pdf metadata", err)
	}
	return out.Bytes(), nil
}
