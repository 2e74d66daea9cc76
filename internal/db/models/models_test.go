package models

import "testing"

// ---------------------------------------------------------------------------
// ParseFileFormat / ContentType
// ---------------------------------------------------------------------------

func TestParseFileFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    FileFormat
		wantErr bool
	}{
		{"pdf", FormatPDF, false},
		{"", FormatPDF, false},
		{"EPUB", FormatEPUB, false},
		{" epub ", FormatEPUB, false},
		{"mobi", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFileFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFileFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFileFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFileFormat_ContentType(t *testing.T) {
	if got := FormatPDF.ContentType(); got != "application/pdf" {
		t.Errorf("pdf content type = %q", got)
	}
	if got := FormatEPUB.ContentType(); got != "application/epub+zip" {
		t.Errorf("epub content type = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Book.MasterKey
// ---------------------------------------------------------------------------

func TestBook_MasterKey(t *testing.T) {
	pdf := "books/sample/master.pdf"
	b := &Book{PDFStorageKey: &pdf}

	if got := b.MasterKey(FormatPDF); got != pdf {
		t.Errorf("MasterKey(pdf) = %q, want %q", got, pdf)
	}
	if got := b.MasterKey(FormatEPUB); got != "" {
		t.Errorf("MasterKey(epub) = %q, want empty", got)
	}
}
