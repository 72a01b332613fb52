package extractors

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/detect"
)

func newStore(t *testing.T) *artifacts.FileStore {
	t.Helper()
	store, err := artifacts.NewFileStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	return store
}

// stage stores data and returns its record and sniff head.
func stage(t *testing.T, store artifacts.Store, data []byte, filename, declared string) (artifacts.Record, []byte) {
	t.Helper()
	loc, err := store.StoreBytes(context.Background(), data)
	require.NoError(t, err)
	head := data
	if len(head) > artifacts.SniffBytes {
		head = head[:artifacts.SniffBytes]
	}
	mediaType := detect.DetectMediaType(filename, declared, head)
	return artifacts.NewRecord(data, loc, filename, mediaType, nil), head
}

// run stages data and invokes e on it.
func run(t *testing.T, e Extractor, data []byte, filename, declared string) (artifacts.Record, []artifacts.ExtractedContent, *artifacts.FailureRecord) {
	t.Helper()
	store := newStore(t)
	rec, head := stage(t, store, data, filename, declared)
	out, failure := e.Extract(context.Background(), rec, store, head)
	if failure == nil {
		require.NotEmpty(t, out)
	} else {
		require.Nil(t, out)
	}
	return rec, out, failure
}
