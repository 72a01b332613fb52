// Package extractors holds the extraction backends and the scored
// registry that routes an artifact to exactly one of them.
package extractors

import (
	"context"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/detect"
)

// Extractor is implemented by every format backend.
type Extractor interface {
	// Name identifies the backend and breaks score ties.
	Name() string
	// Supports scores how well the backend handles the candidate. Zero
	// means it cannot handle it at all.
	Supports(mediaType, extension string, head []byte) int
	// Extract produces derived content or a failure, never both.
	Extract(ctx context.Context, artifact artifacts.Record, store artifacts.Reader, head []byte) ([]artifacts.ExtractedContent, *artifacts.FailureRecord)
}

// Score bands shared by the default backends. Only the ordering matters.
const (
	scoreDeclared  = 100
	scoreMagic     = 95
	scoreExtension = 90
	scoreWeakExt   = 80
	scoreTextMedia = 80
	scoreZipMagic  = 50
)

// RenditionSuffix is appended to the source filename for text renditions.
const RenditionSuffix = ".extracted.txt"

// RenditionName returns the output filename of a text rendition.
func RenditionName(rec artifacts.Record) string {
	name := rec.OriginalFilename
	if name == "" {
		name = rec.ArtifactID
	}
	return name + RenditionSuffix
}

func rendition(rec artifacts.Record, text string) artifacts.ExtractedContent {
	return artifacts.ExtractedContent{
		Content:        []byte(text),
		OutputFilename: RenditionName(rec),
		MediaType:      detect.MediaTypeText,
	}
}

func readArtifact(ctx context.Context, rec artifacts.Record, store artifacts.Reader) ([]byte, *artifacts.FailureRecord) {
	data, err := store.ReadBytes(ctx, rec.StorageLocation)
	if err != nil {
		return nil, artifacts.Failure(artifacts.ReasonExtractParseError, "read %s: %v", rec.ArtifactID, err)
	}
	return data, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Registry selects a backend by score. Ties go to the lexically smallest
// name, so the result does not depend on registration order.
type Registry struct {
	backends []Extractor
}

// NewRegistry creates a registry holding backends. A later backend with
// the same name replaces an earlier one.
func NewRegistry(backends ...Extractor) *Registry {
	r := &Registry{}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// DefaultRegistry returns the closed default set docx, eml, html, pdf, text.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewTextExtractor(),
		NewPDFExtractor(),
		NewDOCXExtractor(),
		NewHTMLExtractor(),
		NewEMLExtractor(),
	)
}

// Register adds or replaces a backend.
func (r *Registry) Register(e Extractor) {
	for i, b := range r.backends {
		if b.Name() == e.Name() {
			r.backends[i] = e
			return
		}
	}
	r.backends = append(r.backends, e)
}

// Names lists the registered backend names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for _, b := range r.backends {
		names = append(names, b.Name())
	}
	sort.Strings(names)
	return names
}

// Select returns the best scoring backend, or false when none scores
// above zero.
func (r *Registry) Select(mediaType, extension string, head []byte) (Extractor, bool) {
	var (
		best      Extractor
		bestScore int
	)
	for _, b := range r.backends {
		score := b.Supports(mediaType, extension, head)
		if score <= 0 {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && b.Name() < best.Name()) {
			best, bestScore = b, score
		}
	}
	return best, best != nil
}

// Scores returns every backend's score for the candidate, keyed by name.
func (r *Registry) Scores(mediaType, extension string, head []byte) map[string]int {
	out := make(map[string]int, len(r.backends))
	for _, b := range r.backends {
		out[b.Name()] = b.Supports(mediaType, extension, head)
	}
	return out
}
