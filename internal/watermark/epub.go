package watermark

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/beevik/etree"

	"github.com/grendelpress/manuscript-vault/internal/apperr"
)

const (
	containerPath    = "META-INF/container.xml"
	pageID           = "watermark-page"
	pageBase         = "watermark"
	pageMediaType    = "application/xhtml+xml"
	xhtmlNamespace   = "http://www.w3.org/1999/xhtml"
	watermarkPageCSS = `body { font-family: serif; margin: 3em 2em; }
.watermark { text-align: center; }
.watermark h1 { font-size: 1.6em; margin-bottom: 1.5em; }
.watermark .recipient { font-weight: bold; }
.watermark .wmid { font-family: monospace; color: #555555; }`
)

// StampEPUB inserts a "Licensed Copy" page at the front of the reading order.
// Every other archive entry is copied raw so its bytes are unchanged. A master
// without a locatable package document, manifest or spine is rejected rather
// than served unstamped.
func StampEPUB(master []byte, stamp Stamp) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(master), int64(len(master)))
	if err != nil {
		return nil, apperr.Render("epub is not a readable zip archive", err)
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	opfPath, err := packageDocumentPath(entries)
	if err != nil {
		return nil, err
	}
	opfFile, ok := entries[opfPath]
	if !ok {
		return nil, apperr.Render(fmt.Sprintf("package document %q not found in archive", opfPath), nil)
	}

	opf, err := readXML(opfFile)
	if err != nil {
		return nil, apperr.Render("failed to parse package document", err)
	}
	root := opf.Root()
	if root == nil {
		return nil, apperr.Render("package document has no root element", nil)
	}
	manifest := root.SelectElement("manifest")
	if manifest == nil {
		return nil, apperr.Render("package document has no manifest", nil)
	}
	spine := root.SelectElement("spine")
	if spine == nil {
		return nil, apperr.Render("package document has no spine", nil)
	}

	dir := path.Dir(opfPath)
	if dir == "." {
		dir = ""
	}
	id, href := uniquePageNames(manifest, entries, dir)

	item := manifest.CreateElement(qualified(manifest, "item"))
	item.CreateAttr("id", id)
	item.CreateAttr("href", href)
	item.CreateAttr("media-type", pageMediaType)

	itemref := etree.NewElement(qualified(spine, "itemref"))
	itemref.CreateAttr("idref", id)
	if children := spine.ChildElements(); len(children) > 0 {
		spine.InsertChildAt(children[0].Index(), itemref)
	} else {
		spine.AddChild(itemref)
	}

	opfBytes, err := opf.WriteToBytes()
	if err != nil {
		return nil, apperr.Render("failed to serialize package document", err)
	}
	page, err := watermarkPage(stamp)
	if err != nil {
		return nil, apperr.Render("failed to build watermark page", err)
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range zr.File {
		if f.Name == opfPath {
			if err := writeEntry(zw, f.Name, opfBytes, f.FileHeader); err != nil {
				return nil, apperr.Render("failed to write package document", err)
			}
			continue
		}
		if err := zw.Copy(f); err != nil {
			return nil, apperr.Render(fmt.Sprintf("failed to copy %s", f.Name), err)
		}
	}
	if err := writeEntry(zw, path.Join(dir, href), page, zip.FileHeader{}); err != nil {
		return nil, apperr.Render("failed to write watermark page", err)
	}
	if err := zw.Close(); err != nil {
		return nil, apperr.Render("failed to finalize epub", err)
	}
	return out.Bytes(), nil
}

// packageDocumentPath reads the first rootfile full-path from the container.
func packageDocumentPath(entries map[string]*zip.File) (string, error) {
	cf, ok := entries[containerPath]
	if !ok {
		return "", apperr.Render("epub has no "+containerPath, nil)
	}
	container, err := readXML(cf)
	if err != nil {
		return "", apperr.Render("failed to parse "+containerPath, err)
	}
	rootfile := container.FindElement("//rootfile")
	if rootfile == nil {
		return "", apperr.Render("container declares no rootfile", nil)
	}
	fullPath := rootfile.SelectAttrValue("full-path", "")
	if fullPath == "" {
		return "", apperr.Render("rootfile has no full-path", nil)
	}
	return fullPath, nil
}

func readXML(f *zip.File) (*etree.Document, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(rc); err != nil {
		return nil, err
	}
	return doc, nil
}

// qualified prefixes tag with the namespace prefix used by parent, so a package
// document written as <opf:manifest> gets <opf:item> children.
func qualified(parent *etree.Element, tag string) string {
	if parent.Space == "" {
		return tag
	}
	return parent.Space + ":" + tag
}

// uniquePageNames picks an id and href not already used by the manifest or archive.
func uniquePageNames(manifest *etree.Element, entries map[string]*zip.File, dir string) (string, string) {
	ids := make(map[string]bool)
	hrefs := make(map[string]bool)
	for _, item := range manifest.ChildElements() {
		if id := item.SelectAttrValue("id", ""); id != "" {
			ids[id] = true
		}
		if href := item.SelectAttrValue("href", ""); href != "" {
			hrefs[href] = true
		}
	}

	id, href := pageID, pageBase+".xhtml"
	for n := 2; ids[id] || hrefs[href] || entries[path.Join(dir, href)] != nil; n++ {
		suffix := "-" + strconv.Itoa(n)
		id, href = pageID+suffix, pageBase+suffix+".xhtml"
	}
	return id, href
}

func writeEntry(zw *zip.Writer, name string, data []byte, orig zip.FileHeader) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: orig.Modified,
		Comment:  orig.Comment,
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, bytes.NewReader(data))
	return err
}

func watermarkPage(stamp Stamp) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective("DOCTYPE html")

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", xhtmlNamespace)

	head := html.CreateElement("head")
	head.CreateElement("title").SetText("Licensed Copy")
	head.CreateElement("style").SetText(watermarkPageCSS)

	body := html.CreateElement("body")
	section := body.CreateElement("div")
	section.CreateAttr("class", "watermark")
	section.CreateElement("h1").SetText("Licensed Copy")
	section.CreateElement("p").SetText("This copy is licensed to:")

	recipient := section.CreateElement("p")
	recipient.CreateAttr("class", "recipient")
	recipient.SetText(stamp.Email)

	title := section.CreateElement("p")
	title.CreateAttr("class", "title")
	title.SetText(stamp.Title)

	wmid := section.CreateElement("p")
	wmid.CreateAttr("class", "wmid")
	wmid.SetText(stamp.WatermarkID)

	footer := section.CreateElement("p")
	footer.CreateAttr("class", "footer")
	footer.SetText(stamp.Footer())

	doc.Indent(2)
	return doc.WriteToBytes()
}
