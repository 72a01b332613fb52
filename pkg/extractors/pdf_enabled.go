//go:build !nopdf

package extractors

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const pdfAvailable = true

// readPDF parses data and collects the text of every page. The reader
// panics on some malformed inputs, so panics become parse errors.
func readPDF(data []byte) (doc pdfDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = pdfDocument{}, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return pdfDocument{}, fmt.Errorf("%w: %v", errPDFPassword, err)
		}
		if strings.Contains(strings.ToLower(err.Error()), "encrypt") {
			return pdfDocument{}, fmt.Errorf("%w: %v", errPDFEncrypted, err)
		}
		return pdfDocument{}, err
	}

	doc.Pages = r.NumPage()
	var sb strings.Builder
	for i := 1; i <= doc.Pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return pdfDocument{}, fmt.Errorf("page %d: %w", i, err)
		}
		if sb.Len() > 0 && text != "" {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
		if !doc.HasImages && pageHasImages(p) {
			doc.HasImages = true
		}
	}
	doc.Text = sb.String()
	return doc, nil
}

func pageHasImages(p pdf.Page) bool {
	xobjects := p.Resources().Key("XObject")
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			return true
		}
	}
	return false
}
