package artifacts

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Mindburn-Labs/derive/pkg/canonicalize"
)

// Job names for the two units of work this module performs.
const (
	JobImport      = "artifact.import"
	JobExtractText = "artifact.extract_text"
)

// SniffBytes is the size of the leading window used for format sniffing.
const SniffBytes = 512

// IDPrefix prefixes every artifact id.
const IDPrefix = "art-"

// Metadata keys stamped on derived artifacts.
const (
	MetaSource           = "source"
	MetaAttachmentName   = "attachment_name"
	MetaParentArtifactID = "parent_artifact_id"

	SourceAttachment = "attachment"
)

// Record is the immutable description of one stored blob.
type Record struct {
	ArtifactID       string            `json:"artifact_id"`
	OriginalFilename string            `json:"original_filename"`
	MediaType        string            `json:"media_type"`
	ByteSize         int64             `json:"byte_size"`
	ContentDigest    string            `json:"content_digest"`
	StorageLocation  string            `json:"storage_location"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Digest returns the lower-case hex SHA-256 of data.
func Digest(data []byte) string {
	return canonicalize.HashBytes(data)
}

// IDForDigest derives the artifact id from a content digest.
func IDForDigest(digest string) string {
	return IDPrefix + digest
}

// DigestFromID is the inverse of IDForDigest.
func DigestFromID(id string) (string, bool) {
	if !strings.HasPrefix(id, IDPrefix) {
		return "", false
	}
	digest := strings.TrimPrefix(id, IDPrefix)
	return digest, isHexDigest(digest)
}

// NewRecord builds the record for data stored at location.
func NewRecord(data []byte, location, filename, mediaType string, metadata map[string]string) Record {
	digest := Digest(data)
	return Record{
		ArtifactID:       IDForDigest(digest),
		OriginalFilename: filename,
		MediaType:        mediaType,
		ByteSize:         int64(len(data)),
		ContentDigest:    digest,
		StorageLocation:  location,
		Metadata:         cloneMetadata(metadata),
	}
}

// ExtractedContent is a unit produced by a backend before it is stored.
type ExtractedContent struct {
	Content        []byte
	OutputFilename string
	MediaType      string
	Metadata       map[string]string
}

// DerivationResult is the outcome of one extraction attempt. Exactly one
// of Derived and Failure is populated; the zero value is invalid and
// only Succeeded and Failed construct usable results.
type DerivationResult struct {
	derived []Record
	failure *FailureRecord
}

// Succeeded wraps an ordered list of derived records.
func Succeeded(records []Record) DerivationResult {
	if records == nil {
		records = []Record{}
	}
	return DerivationResult{derived: records}
}

// Failed wraps a failure.
func Failed(failure *FailureRecord) DerivationResult {
	if failure == nil {
		failure = &FailureRecord{ReasonCode: ReasonExtractParseError, Detail: "unspecified failure"}
	}
	return DerivationResult{failure: failure}
}

// OK reports whether the result is a success.
func (r DerivationResult) OK() bool { return r.failure == nil && r.derived != nil }

// Derived returns the derived records, or nil for a failure.
func (r DerivationResult) Derived() []Record { return r.derived }

// Failure returns the failure, or nil for a success.
func (r DerivationResult) Failure() *FailureRecord { return r.failure }

type derivationJSON struct {
	DerivedArtifacts []Record       `json:"derived_artifacts,omitempty"`
	Failure          *FailureRecord `json:"failure,omitempty"`
}

func (r DerivationResult) MarshalJSON() ([]byte, error) {
	if r.failure == nil && r.derived == nil {
		return nil, errors.New("artifacts: empty derivation result")
	}
	if r.failure != nil {
		return json.Marshal(derivationJSON{Failure: r.failure})
	}
	// omitempty would drop an empty list; spell it out.
	if len(r.derived) == 0 {
		return []byte(`{"derived_artifacts":[]}`), nil
	}
	return json.Marshal(derivationJSON{DerivedArtifacts: r.derived})
}

func (r *DerivationResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		DerivedArtifacts *[]Record      `json:"derived_artifacts"`
		Failure          *FailureRecord `json:"failure"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Failure != nil && raw.DerivedArtifacts != nil:
		return errors.New("artifacts: derivation result has both derived artifacts and failure")
	case raw.Failure != nil:
		*r = Failed(raw.Failure)
	case raw.DerivedArtifacts != nil:
		*r = Succeeded(*raw.DerivedArtifacts)
	default:
		return errors.New("artifacts: derivation result has neither derived artifacts nor failure")
	}
	return nil
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
