// Package detect resolves the media type of an imported blob from its
// declared type, its filename extension and its leading bytes.
package detect

import (
	"bytes"
	"mime"
	"path/filepath"
	"sort"
	"strings"
)

// Media types of the supported families.
const (
	MediaTypeText   = "text/plain"
	MediaTypeMD     = "text/markdown"
	MediaTypePDF    = "application/pdf"
	MediaTypeDOCX   = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeHTML   = "text/html"
	MediaTypeEML    = "message/rfc822"
	MediaTypeBinary = "application/octet-stream"
)

// Magic prefixes.
var (
	MagicPDF = []byte("%PDF")
	MagicZIP = []byte("PK\x03\x04")
	MagicOLE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Family is one of the importable format families.
type Family string

const (
	FamilyNone Family = ""
	FamilyText Family = "text"
	FamilyPDF  Family = "pdf"
	FamilyDOCX Family = "docx"
	FamilyHTML Family = "html"
	FamilyEML  Family = "eml"
)

// extensionTable keys are lower-case with the leading dot.
var extensionTable = map[string]string{
	".txt":  MediaTypeText,
	".md":   MediaTypeText,
	".pdf":  MediaTypePDF,
	".docx": MediaTypeDOCX,
	".html": MediaTypeHTML,
	".htm":  MediaTypeHTML,
	".eml":  MediaTypeEML,
}

var mediaTypeFamily = map[string]Family{
	MediaTypeText: FamilyText,
	MediaTypeMD:   FamilyText,
	MediaTypePDF:  FamilyPDF,
	MediaTypeDOCX: FamilyDOCX,
	MediaTypeHTML: FamilyHTML,
	MediaTypeEML:  FamilyEML,
}

// Extension returns the lower-cased extension of filename, including the dot.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// Essence strips parameters from a media type and lower-cases it, so
// "Text/HTML; charset=utf-8" becomes "text/html".
func Essence(mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		return mt
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// ExtensionFamily returns the family an extension belongs to.
func ExtensionFamily(ext string) Family {
	if mt, ok := extensionTable[strings.ToLower(ext)]; ok {
		return mediaTypeFamily[mt]
	}
	return FamilyNone
}

// MediaTypeFamily returns the family of an explicit media type.
func MediaTypeFamily(mediaType string) Family {
	return mediaTypeFamily[Essence(mediaType)]
}

// MagicFamily sniffs the family from leading bytes. A ZIP container is
// reported as DOCX, the only ZIP-based family.
func MagicFamily(head []byte) Family {
	switch {
	case bytes.HasPrefix(head, MagicPDF):
		return FamilyPDF
	case bytes.HasPrefix(head, MagicZIP):
		return FamilyDOCX
	default:
		return FamilyNone
	}
}

// DetectMediaType resolves the media type for an import. A declared type
// is returned verbatim. Otherwise the extension table is consulted, then
// magic bytes, then the generic binary type.
func DetectMediaType(filename, declared string, head []byte) string {
	if strings.TrimSpace(declared) != "" {
		return declared
	}
	if mt, ok := extensionTable[Extension(filename)]; ok {
		return mt
	}
	switch MagicFamily(head) {
	case FamilyPDF:
		return MediaTypePDF
	case FamilyDOCX:
		return MediaTypeDOCX
	}
	return MediaTypeBinary
}

// IsSupportedImport reports whether any one signal places the blob in a
// known family.
func IsSupportedImport(mediaType, extension string, head []byte) bool {
	return ExtensionFamily(extension) != FamilyNone ||
		MediaTypeFamily(mediaType) != FamilyNone ||
		MagicFamily(head) != FamilyNone
}

// Extensions lists the extensions of the built-in table, sorted.
func Extensions() []string {
	out := make([]string, 0, len(extensionTable))
	for ext := range extensionTable {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
