package artifacts

import (
	"context"
	"fmt"
)

// Verify re-reads the blob behind rec and checks it against the record.
// It returns false with reasons when the stored bytes do not match; the
// error is reserved for reads that could not be performed at all.
func Verify(ctx context.Context, store Reader, rec Record) (bool, []string, error) {
	reasons := []string{}

	if rec.StorageLocation == "" {
		return false, append(reasons, "missing storage location"), nil
	}

	data, err := store.ReadBytes(ctx, rec.StorageLocation)
	if err != nil {
		return false, nil, fmt.Errorf("read %s: %w", rec.ArtifactID, err)
	}

	valid := true
	digest := Digest(data)
	if digest != rec.ContentDigest {
		valid = false
		reasons = append(reasons, fmt.Sprintf("digest mismatch: stored %s, recorded %s", digest, rec.ContentDigest))
	}
	if int64(len(data)) != rec.ByteSize {
		valid = false
		reasons = append(reasons, fmt.Sprintf("size mismatch: stored %d, recorded %d", len(data), rec.ByteSize))
	}
	if idDigest, ok := DigestFromID(rec.ArtifactID); !ok {
		valid = false
		reasons = append(reasons, fmt.Sprintf("malformed artifact id %q", rec.ArtifactID))
	} else if idDigest != rec.ContentDigest {
		valid = false
		reasons = append(reasons, "artifact id does not derive from content digest")
	}

	return valid, reasons, nil
}
