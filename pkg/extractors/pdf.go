package extractors

import (
	"bytes"
	"context"
	"errors"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/detect"
)

// Errors reported by the PDF reader, mapped onto reason codes.
var (
	errPDFPassword  = errors.New("pdf: password required")
	errPDFEncrypted = errors.New("pdf: unsupported encryption")
)

// pdfDocument is what the PDF reader hands back.
type pdfDocument struct {
	Pages     int
	Text      string
	HasImages bool
}

// PDFExtractor renders the text layer of a PDF.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

func (*PDFExtractor) Name() string { return "pdf" }

func (*PDFExtractor) Supports(mediaType, extension string, head []byte) int {
	switch {
	case detect.Essence(mediaType) == detect.MediaTypePDF:
		return scoreDeclared
	case bytes.HasPrefix(head, detect.MagicPDF):
		return scoreMagic
	case detect.ExtensionFamily(extension) == detect.FamilyPDF:
		return scoreExtension
	}
	return 0
}

func (*PDFExtractor) Extract(ctx context.Context, artifact artifacts.Record, store artifacts.Reader, _ []byte) ([]artifacts.ExtractedContent, *artifacts.FailureRecord) {
	if !pdfAvailable {
		return nil, artifacts.DependencyMissing(pdfModule)
	}
	data, failure := readArtifact(ctx, artifact, store)
	if failure != nil {
		return nil, failure
	}

	doc, err := readPDF(data)
	switch {
	case errors.Is(err, errPDFPassword):
		return nil, artifacts.Failure(artifacts.ReasonExtractPasswordRequired, "%s: %v", artifact.ArtifactID, err)
	case errors.Is(err, errPDFEncrypted):
		return nil, artifacts.Failure(artifacts.ReasonExtractEncryptedDocument, "%s: %v", artifact.ArtifactID, err)
	case err != nil:
		return nil, artifacts.Failure(artifacts.ReasonExtractParseError, "%s: %v", artifact.ArtifactID, err)
	}

	if isBlank(doc.Text) {
		if doc.HasImages {
			return nil, artifacts.Failure(artifacts.ReasonExtractOCRRequired, "%s has %d page(s) of images and no text layer", artifact.ArtifactID, doc.Pages)
		}
		return nil, artifacts.Failure(artifacts.ReasonExtractEmptyContent, "%s has no extractable text", artifact.ArtifactID)
	}
	return []artifacts.ExtractedContent{rendition(artifact, doc.Text)}, nil
}
