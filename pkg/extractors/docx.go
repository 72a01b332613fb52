package extractors

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/detect"
)

const (
	docxBodyPart = "word/document.xml"
	wordprocNS   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

	// maxDocxBodyBytes caps the inflated document part.
	maxDocxBodyBytes = 64 << 20
)

// Password protected OOXML is stored as an OLE compound file carrying an
// EncryptionInfo stream. Directory entry names are UTF-16LE.
var oleEncryptionInfo = utf16LE("EncryptionInfo")

// DOCXExtractor renders the paragraphs of a WordprocessingML document.
type DOCXExtractor struct{}

func NewDOCXExtractor() *DOCXExtractor { return &DOCXExtractor{} }

func (*DOCXExtractor) Name() string { return "docx" }

func (*DOCXExtractor) Supports(mediaType, extension string, head []byte) int {
	switch {
	case detect.Essence(mediaType) == detect.MediaTypeDOCX:
		return scoreDeclared
	case detect.ExtensionFamily(extension) == detect.FamilyDOCX:
		return scoreExtension
	case bytes.HasPrefix(head, detect.MagicZIP):
		return scoreZipMagic
	}
	return 0
}

func (*DOCXExtractor) Extract(ctx context.Context, artifact artifacts.Record, store artifacts.Reader, _ []byte) ([]artifacts.ExtractedContent, *artifacts.FailureRecord) {
	data, failure := readArtifact(ctx, artifact, store)
	if failure != nil {
		return nil, failure
	}

	if bytes.HasPrefix(data, detect.MagicOLE) {
		if bytes.Contains(data, oleEncryptionInfo) {
			return nil, artifacts.Failure(artifacts.ReasonExtractEncryptedDocument, "%s is an encrypted office document", artifact.ArtifactID)
		}
		return nil, artifacts.Failure(artifacts.ReasonExtractParseError, "%s is a legacy OLE document, not docx", artifact.ArtifactID)
	}

	text, err := docxText(data)
	if err != nil {
		return nil, artifacts.Failure(artifacts.ReasonExtractParseError, "%s: %v", artifact.ArtifactID, err)
	}
	if isBlank(text) {
		return nil, artifacts.Failure(artifacts.ReasonExtractEmptyContent, "%s has no paragraph text", artifact.ArtifactID)
	}
	return []artifacts.ExtractedContent{rendition(artifact, text)}, nil
}

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx container: %w", err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPart {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("missing %s", docxBodyPart)
	}
	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxBodyPart, err)
	}
	defer rc.Close() //nolint:errcheck // read-only

	return paragraphs(io.LimitReader(rc, maxDocxBodyBytes))
}

// paragraphs joins the non-empty w:p paragraphs with newlines. Runs,
// tabs and breaks inside a paragraph are concatenated in order.
func paragraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		out    []string
		para   strings.Builder
		inText bool
		inPara bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", docxBodyPart, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordprocNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				inPara = true
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != wordprocNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if para.Len() > 0 {
					out = append(out, para.String())
				}
				inPara = false
			}
		case xml.CharData:
			if inText && inPara {
				para.Write(t)
			}
		}
	}
	return strings.Join(out, "\n"), nil
}

func utf16LE(s string) []byte {
	out := make([]byte, 0, 2*len(s))
	for _, r := range s {
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}
