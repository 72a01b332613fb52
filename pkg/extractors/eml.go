package extractors

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/detect"
)

const (
	maxMIMEDepth          = 32
	defaultAttachmentName = "attachment"
	dispositionAttachment = "attachment"
	multipartPrefix       = "multipart/"
	mediaTypeMessage      = "message/rfc822"
	forwardedSeparator    = "---------- Forwarded message ----------\n"
)

// EMLExtractor renders an RFC 5322 message as one text rendition of its
// body followed by one derived item per attachment.
type EMLExtractor struct {
	words *mime.WordDecoder
}

func NewEMLExtractor() *EMLExtractor {
	return &EMLExtractor{words: &mime.WordDecoder{CharsetReader: charsetReader}}
}

func (*EMLExtractor) Name() string { return "eml" }

func (*EMLExtractor) Supports(mediaType, extension string, _ []byte) int {
	switch {
	case detect.Essence(mediaType) == detect.MediaTypeEML:
		return scoreDeclared
	case detect.ExtensionFamily(extension) == detect.FamilyEML:
		return scoreWeakExt
	}
	return 0
}

// mimeLeaf is a decoded non-multipart entity.
type mimeLeaf struct {
	mediaType   string
	params      map[string]string
	disposition string
	filename    string
	body        []byte
	forwarded   bool
}

func (e *EMLExtractor) Extract(ctx context.Context, artifact artifacts.Record, store artifacts.Reader, _ []byte) ([]artifacts.ExtractedContent, *artifacts.FailureRecord) {
	data, failure := readArtifact(ctx, artifact, store)
	if failure != nil {
		return nil, failure
	}

	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, artifacts.Failure(artifacts.ReasonExtractParseError, "%s: %v", artifact.ArtifactID, err)
	}

	var leaves []mimeLeaf
	if err := e.walk(textproto.MIMEHeader(msg.Header), msg.Body, 0, &leaves); err != nil {
		return nil, artifacts.Failure(artifacts.ReasonExtractParseError, "%s: %v", artifact.ArtifactID, err)
	}

	body := bestBody(leaves)
	for _, leaf := range leaves {
		if !leaf.forwarded {
			continue
		}
		if !isBlank(body) {
			body += "\n\n"
		}
		body += forwardedSeparator + string(leaf.body)
	}
	if isBlank(body) {
		return nil, artifacts.Failure(artifacts.ReasonExtractEmptyContent, "%s has an empty message body", artifact.ArtifactID)
	}

	out := []artifacts.ExtractedContent{rendition(artifact, e.headerBlock(msg.Header)+body)}

	for _, leaf := range leaves {
		if leaf.disposition != dispositionAttachment || len(leaf.body) == 0 {
			continue
		}
		mediaType := leaf.mediaType
		if mediaType == "" {
			mediaType = detect.MediaTypeBinary
		}
		out = append(out, artifacts.ExtractedContent{
			Content:        leaf.body,
			OutputFilename: leaf.filename,
			MediaType:      mediaType,
			Metadata: map[string]string{
				artifacts.MetaSource:           artifacts.SourceAttachment,
				artifacts.MetaAttachmentName:   leaf.filename,
				artifacts.MetaParentArtifactID: artifact.ArtifactID,
			},
		})
	}
	return out, nil
}

func (e *EMLExtractor) headerBlock(h mail.Header) string {
	return fmt.Sprintf("Subject: %s\nFrom: %s\nTo: %s\nDate: %s\n\n",
		e.header(h, "Subject"),
		e.header(h, "From"),
		e.header(h, "To"),
		h.Get("Date"),
	)
}

func (e *EMLExtractor) header(h mail.Header, key string) string {
	raw := h.Get(key)
	decoded, err := e.words.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// walk flattens the entity tree depth first, in document order. An
// attachment whose transfer encoding cannot be decoded is dropped; an
// inline entity keeps its raw bytes instead.
func (e *EMLExtractor) walk(h textproto.MIMEHeader, body io.Reader, depth int, leaves *[]mimeLeaf) error {
	if depth > maxMIMEDepth {
		return fmt.Errorf("mime nesting deeper than %d", maxMIMEDepth)
	}

	var disposition, filename string
	if cd := h.Get("Content-Disposition"); cd != "" {
		disp, dparams, err := mime.ParseMediaType(cd)
		if err == nil || errors.Is(err, mime.ErrInvalidMediaParameter) {
			disposition = disp
			filename = dparams["filename"]
		}
	}

	var (
		mediaType string
		params    map[string]string
	)
	if ct := h.Get("Content-Type"); ct != "" {
		mt, p, err := mime.ParseMediaType(ct)
		switch {
		case err == nil || errors.Is(err, mime.ErrInvalidMediaParameter):
			mediaType, params = mt, p
		case disposition == dispositionAttachment:
			mediaType = detect.MediaTypeBinary
		default:
			mediaType = detect.MediaTypeText
		}
	}

	if strings.HasPrefix(mediaType, multipartPrefix) {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("%s without boundary", mediaType)
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextRawPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read %s part: %w", mediaType, err)
			}
			if err := e.walk(part.Header, part, depth+1, leaves); err != nil {
				return err
			}
		}
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read %s body: %w", mediaType, err)
	}
	payload, err := decodeTransfer(h.Get("Content-Transfer-Encoding"), bytes.NewReader(raw))
	if err != nil {
		if disposition == dispositionAttachment {
			return nil
		}
		payload = raw
	}

	if mediaType == mediaTypeMessage && disposition != dispositionAttachment {
		if ok, err := e.walkForwarded(payload, depth, leaves); ok || err != nil {
			return err
		}
	}

	leaf := mimeLeaf{mediaType: mediaType, params: params, disposition: disposition, filename: filename, body: payload}
	if leaf.filename == "" {
		leaf.filename = params["name"]
	}
	if leaf.filename != "" {
		if decoded, err := e.words.DecodeHeader(leaf.filename); err == nil {
			leaf.filename = decoded
		}
	} else if leaf.disposition == dispositionAttachment {
		leaf.filename = defaultAttachmentName
	}
	*leaves = append(*leaves, leaf)
	return nil
}

// walkForwarded expands an inline message/rfc822 entity into one
// forwarded text leaf followed by the nested message's attachments. It
// reports false when payload is not a parseable message.
func (e *EMLExtractor) walkForwarded(payload []byte, depth int, leaves *[]mimeLeaf) (bool, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(payload))
	if err != nil {
		return false, nil
	}
	var nested []mimeLeaf
	if err := e.walk(textproto.MIMEHeader(msg.Header), msg.Body, depth+1, &nested); err != nil {
		return true, err
	}
	*leaves = append(*leaves, mimeLeaf{
		mediaType: detect.MediaTypeText,
		forwarded: true,
		body:      []byte(e.headerBlock(msg.Header) + bestBody(nested)),
	})
	for _, l := range nested {
		if l.forwarded || l.disposition == dispositionAttachment {
			*leaves = append(*leaves, l)
		}
	}
	return true, nil
}

func decodeTransfer(cte string, body io.Reader) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(cte)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		r = quotedprintable.NewReader(body)
	default:
		r = body
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", cte, err)
	}
	return data, nil
}

// bestBody prefers the first inline text/plain entity and falls back to
// rendering the first inline text/html one. A message without a
// Content-Type is text/plain.
func bestBody(leaves []mimeLeaf) string {
	for _, l := range leaves {
		if l.disposition == dispositionAttachment || l.forwarded {
			continue
		}
		if l.mediaType == detect.MediaTypeText || l.mediaType == "" {
			return normalizeNewlines(decodeCharset(l.body, l.params["charset"]))
		}
	}
	if !htmlAvailable {
		return ""
	}
	for _, l := range leaves {
		if l.disposition == dispositionAttachment || l.forwarded || l.mediaType != detect.MediaTypeHTML {
			continue
		}
		page, err := renderHTML(bytes.NewReader(l.body), mime.FormatMediaType(l.mediaType, l.params))
		if err != nil {
			continue
		}
		return page.Text
	}
	return ""
}

func decodeCharset(data []byte, label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case "", "utf-8", "utf8", "us-ascii":
		return DecodeText(data)
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return DecodeText(data)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return DecodeText(data)
	}
	return string(decoded)
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
