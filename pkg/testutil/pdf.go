package testutil

import (
	"bytes"
	"fmt"
	"strings"
)

// PDF returns a well-formed PDF 1.4 file with one page per entry of
// pages, each showing its text in Helvetica.
func PDF(pages ...string) []byte {
	b := &pdfBuilder{}
	fontID := 3 + 2*len(pages)
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}

	b.object("<< /Type /Catalog /Pages 2 0 R >>")
	b.object(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	for i, text := range pages {
		contentID := 4 + 2*i
		b.object(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>", contentID, fontID))
		b.stream("", fmt.Sprintf("BT /F1 24 Tf 72 720 Td (%s) Tj ET", escapePDF(text)))
	}
	b.object("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	return b.finish()
}

// ImagePDF returns a one-page PDF that paints a 1x1 image and has no text.
func ImagePDF() []byte {
	b := &pdfBuilder{}
	b.object("<< /Type /Catalog /Pages 2 0 R >>")
	b.object("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.object("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /XObject << /Im1 5 0 R >> >> >>")
	b.stream("", "q 100 0 0 100 72 600 cm /Im1 Do Q")
	b.stream("/Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8", "\x80")
	return b.finish()
}

// PasswordPDF returns a one-page PDF locked by the Standard security
// handler (RC4, 128-bit) under a user password that is not empty.
func PasswordPDF() []byte {
	O := strings.Repeat("O", 32)
	U := strings.Repeat("U", 32)
	return encryptedPDF(fmt.Sprintf("/Filter /Standard /V 2 /R 3 /Length 128 /P -4 /O (%s) /U (%s)", O, U))
}

// UnsupportedEncryptionPDF returns a one-page PDF whose Encrypt dictionary
// names a security handler other than Standard.
func UnsupportedEncryptionPDF() []byte {
	return encryptedPDF("/Filter /AcmeLock /V 1 /Length 40")
}

func encryptedPDF(encrypt string) []byte {
	b := &pdfBuilder{
		trailer: fmt.Sprintf(" /Encrypt << %s >> /ID [(0123456789abcdef) (0123456789abcdef)]", encrypt),
	}
	b.object("<< /Type /Catalog /Pages 2 0 R >>")
	b.object("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.object("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>")
	b.stream("", "BT /F1 24 Tf 72 720 Td (secret) Tj ET")
	return b.finish()
}

type pdfBuilder struct {
	buf     bytes.Buffer
	offsets []int
	trailer string
}

func (b *pdfBuilder) header() {
	if b.buf.Len() == 0 {
		b.buf.WriteString("%PDF-1.4\n")
	}
}

func (b *pdfBuilder) object(body string) {
	b.header()
	b.offsets = append(b.offsets, b.buf.Len())
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", len(b.offsets), body)
}

func (b *pdfBuilder) stream(dict, data string) {
	if dict != "" {
		dict += " "
	}
	b.object(fmt.Sprintf("<< %s/Length %d >>\nstream\n%s\nendstream", dict, len(data), data))
}

func (b *pdfBuilder) finish() []byte {
	xref := b.buf.Len()
	fmt.Fprintf(&b.buf, "xref\n0 %d\n0000000000 65535 f \n", len(b.offsets)+1)
	for _, off := range b.offsets {
		fmt.Fprintf(&b.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", len(b.offsets)+1, b.trailer, xref)
	return b.buf.Bytes()
}

func escapePDF(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
