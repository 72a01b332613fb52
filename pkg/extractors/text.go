package extractors

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/detect"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextExtractor renders plain text files as UTF-8.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

func (*TextExtractor) Name() string { return "text" }

func (*TextExtractor) Supports(mediaType, extension string, _ []byte) int {
	if detect.ExtensionFamily(extension) == detect.FamilyText {
		return scoreExtension
	}
	if strings.HasPrefix(detect.Essence(mediaType), "text/") {
		return scoreTextMedia
	}
	return 0
}

func (*TextExtractor) Extract(ctx context.Context, artifact artifacts.Record, store artifacts.Reader, _ []byte) ([]artifacts.ExtractedContent, *artifacts.FailureRecord) {
	data, failure := readArtifact(ctx, artifact, store)
	if failure != nil {
		return nil, failure
	}
	text := DecodeText(data)
	if isBlank(text) {
		return nil, artifacts.Failure(artifacts.ReasonExtractEmptyContent, "%s contains no text", artifact.ArtifactID)
	}
	return []artifacts.ExtractedContent{rendition(artifact, text)}, nil
}

// DecodeText decodes UTF-8 (dropping a leading BOM) and falls back to
// ISO-8859-1, which accepts every byte sequence. Output is NFC.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return norm.NFC.String(string(data))
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return norm.NFC.String(string(decoded))
}
