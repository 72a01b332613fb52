package extractors

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/detect"
)

// HTMLExtractor renders an HTML page as readable text with a short header.
type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

func (*HTMLExtractor) Name() string { return "html" }

func (*HTMLExtractor) Supports(mediaType, extension string, _ []byte) int {
	switch {
	case detect.Essence(mediaType) == detect.MediaTypeHTML:
		return scoreDeclared
	case detect.ExtensionFamily(extension) == detect.FamilyHTML:
		return scoreWeakExt
	}
	return 0
}

func (*HTMLExtractor) Extract(ctx context.Context, artifact artifacts.Record, store artifacts.Reader, _ []byte) ([]artifacts.ExtractedContent, *artifacts.FailureRecord) {
	if !htmlAvailable {
		return nil, artifacts.DependencyMissing(htmlModule)
	}
	data, failure := readArtifact(ctx, artifact, store)
	if failure != nil {
		return nil, failure
	}

	page, err := renderHTML(bytes.NewReader(data), artifact.MediaType)
	if err != nil {
		if errors.Is(err, errDependencyMissing) {
			return nil, artifacts.DependencyMissing(htmlModule)
		}
		return nil, artifacts.Failure(artifacts.ReasonExtractParseError, "%s: %v", artifact.ArtifactID, err)
	}
	if isBlank(page.Text) {
		return nil, artifacts.Failure(artifacts.ReasonExtractEmptyContent, "%s has no readable text", artifact.ArtifactID)
	}

	header := fmt.Sprintf("Title: %s\nSource: %s\n\n", page.Title, artifact.OriginalFilename)
	return []artifacts.ExtractedContent{rendition(artifact, header+page.Text)}, nil
}

// renderedPage is the readable form of an HTML document.
type renderedPage struct {
	Title string
	Text  string
}
