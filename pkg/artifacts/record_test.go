package artifacts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	data := []byte("Hello")
	meta := map[string]string{"k": "v"}
	rec := NewRecord(data, "loc", "hello.txt", "text/plain", meta)

	assert.Equal(t, "185f8db32271fe25f561a6fc938b2e264306ec304eda518007d1764826381969", rec.ContentDigest)
	assert.Equal(t, "art-"+rec.ContentDigest, rec.ArtifactID)
	assert.Equal(t, int64(5), rec.ByteSize)
	assert.Equal(t, "hello.txt", rec.OriginalFilename)

	meta["k"] = "changed"
	assert.Equal(t, "v", rec.Metadata["k"], "record must not alias caller metadata")
}

func TestDigestFromID(t *testing.T) {
	digest := Digest([]byte("x"))

	got, ok := DigestFromID(IDForDigest(digest))
	assert.True(t, ok)
	assert.Equal(t, digest, got)

	_, ok = DigestFromID("art-xyz")
	assert.False(t, ok)
	_, ok = DigestFromID(digest)
	assert.False(t, ok)
}

func TestRecord_JSONFieldNames(t *testing.T) {
	rec := NewRecord([]byte("a"), "loc", "a.txt", "text/plain", nil)
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, k := range []string{"artifact_id", "original_filename", "media_type", "byte_size", "content_digest", "storage_location"} {
		assert.Contains(t, fields, k)
	}
	assert.NotContains(t, fields, "metadata")
}

func TestDerivationResult_ExactlyOne(t *testing.T) {
	ok := Succeeded(nil)
	assert.True(t, ok.OK())
	assert.NotNil(t, ok.Derived())
	assert.Nil(t, ok.Failure())

	failed := Failed(Failure(ReasonExtractEmptyContent, "nothing"))
	assert.False(t, failed.OK())
	assert.Nil(t, failed.Derived())
	require.NotNil(t, failed.Failure())
	assert.Equal(t, ReasonExtractEmptyContent, failed.Failure().ReasonCode)

	assert.False(t, DerivationResult{}.OK())
	_, err := json.Marshal(DerivationResult{})
	assert.Error(t, err)
}

func TestDerivationResult_JSON(t *testing.T) {
	raw, err := json.Marshal(Succeeded(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"derived_artifacts":[]}`, string(raw))

	raw, err = json.Marshal(Failed(DependencyMissing("pdf")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"failure":{"reason_code":"EXTRACT_DEPENDENCY_MISSING","detail":"pdf not available in this build","dependency":"pdf"}}`, string(raw))

	var back DerivationResult
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "pdf", back.Failure().Dependency)

	assert.Error(t, json.Unmarshal([]byte(`{}`), &back))
	assert.Error(t, json.Unmarshal([]byte(`{"derived_artifacts":[],"failure":{"reason_code":"EXTRACT_PARSE_ERROR"}}`), &back))
}
