package loader

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"ai-docchat-be/pkg/document"

	pdf "github.com/ledongthuc/pdf"
)

var (
	ErrNotPDF   = errors.New("loader: file is not a PDF")
	ErrNoText   = errors.New("loader: PDF has no extractable text")
	pdfMagicHdr = []byte("%PDF-")
)

// IsPDF checks the extension and, when data is given, the file header.
func IsPDF(filename string, data []byte) bool {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return false
	}
	return data == nil || bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagicHdr)
}

// LoadPDF extracts one Document per page that has text. Pages are numbered from 1.
// Documents carry no id; the reducer assigns one when they enter a collection.
func LoadPDF(data []byte, filename string) ([]document.Document, error) {
	if !IsPDF(filename, data) {
		return nil, ErrNotPDF
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := r.NumPage()
	docs := make([]document.Document, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		docs = append(docs, document.Document{
			Content: text,
			Metadata: map[string]interface{}{
				document.MetaSource: filename,
				document.MetaPage:   i,
				"total_pages":       total,
			},
		})
	}

	if len(docs) == 0 {
		return nil, ErrNoText
	}
	return docs, nil
}
