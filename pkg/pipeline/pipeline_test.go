package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/testutil"
)

func newService(t *testing.T, opts ...Option) (*Service, *artifacts.FileStore) {
	t.Helper()
	store, err := artifacts.NewFileStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	return New(store, opts...), store
}

func countBlobs(t *testing.T, root string) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	}))
	return n
}

func readDerived(t *testing.T, store artifacts.Store, rec artifacts.Record) string {
	t.Helper()
	data, err := store.ReadBytes(context.Background(), rec.StorageLocation)
	require.NoError(t, err)
	return string(data)
}

func TestScenario_PlainText(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	rec, err := svc.ImportBytes(ctx, []byte("hello world"), "note.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", rec.MediaType)
	assert.Equal(t, int64(11), rec.ByteSize)

	result := svc.Extract(ctx, rec)
	require.True(t, result.OK(), "failure: %v", result.Failure())
	require.Len(t, result.Derived(), 1)

	child := result.Derived()[0]
	assert.Equal(t, "hello world", readDerived(t, store, child))
	assert.True(t, strings.HasSuffix(child.OriginalFilename, ".extracted.txt"))
	assert.Equal(t, "text/plain", child.MediaType)
	assert.Equal(t, artifacts.IDForDigest(child.ContentDigest), child.ArtifactID)
}

func TestScenario_PDF(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	rec, err := svc.ImportBytes(ctx, testutil.PDF("Hello PDF"), "hello.pdf", "")
	require.NoError(t, err)

	result := svc.Extract(ctx, rec)
	require.True(t, result.OK(), "failure: %v", result.Failure())
	assert.Contains(t, readDerived(t, store, result.Derived()[0]), "Hello PDF")
}

func TestScenario_EmailWithAttachment(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	data := testutil.Email("Hi", "Please find the note attached.", testutil.Attachment{
		Name:        "note.txt",
		ContentType: "text/plain",
		Content:     []byte("att content"),
	})
	rec, err := svc.ImportBytes(ctx, data, "message.eml", "")
	require.NoError(t, err)

	result := svc.Extract(ctx, rec)
	require.True(t, result.OK(), "failure: %v", result.Failure())
	derived := result.Derived()
	require.GreaterOrEqual(t, len(derived), 2)

	assert.Contains(t, readDerived(t, store, derived[0]), "Please find the note attached.")

	var att *artifacts.Record
	for i := range derived {
		if derived[i].OriginalFilename == "note.txt" {
			att = &derived[i]
		}
	}
	require.NotNil(t, att)
	assert.Equal(t, rec.ArtifactID, att.Metadata["parent_artifact_id"])
	assert.Equal(t, "attachment", att.Metadata["source"])
	assert.Equal(t, "att content", readDerived(t, store, *att))
}

func TestScenario_ZeroBytePDF(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.ImportBytes(ctx, []byte{}, "empty.pdf", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.ByteSize)

	result := svc.Extract(ctx, rec)
	require.False(t, result.OK())
	assert.Nil(t, result.Derived())
	assert.Equal(t, artifacts.ReasonExtractParseError, result.Failure().ReasonCode)
}

func TestScenario_UnsupportedImportWritesNothing(t *testing.T) {
	svc, store := newService(t)

	_, err := svc.ImportBytes(context.Background(), []byte("\x7fELF\x02\x01\x01"), "tool.xyz", "")
	require.Error(t, err)
	code, ok := artifacts.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, artifacts.ReasonImportUnsupportedType, code)
	assert.Equal(t, 0, countBlobs(t, store.Root()))
}

func TestImport_Idempotent(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	a, err := svc.ImportBytes(ctx, []byte("same bytes"), "a.txt", "")
	require.NoError(t, err)
	b, err := svc.ImportBytes(ctx, []byte("same bytes"), "a.txt", "")
	require.NoError(t, err)

	assert.Equal(t, a.ArtifactID, b.ArtifactID)
	assert.Equal(t, a.ContentDigest, b.ContentDigest)
	assert.Equal(t, a.StorageLocation, b.StorageLocation)
	assert.Equal(t, 1, countBlobs(t, store.Root()))
}

func TestImport_ConcurrentIdenticalContent(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	const n = 12
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := svc.ImportBytes(ctx, []byte("shared payload"), "shared.txt", "")
			ids[i], errs[i] = rec.ArtifactID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, countBlobs(t, store.Root()))
}

func TestImport_MagicBytesRescueWrongExtension(t *testing.T) {
	svc, _ := newService(t)
	rec, err := svc.ImportBytes(context.Background(), testutil.PDF("rescued"), "upload.bin", "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", rec.MediaType)
}

func TestImport_DeclaredTypeKeptVerbatim(t *testing.T) {
	svc, _ := newService(t)
	rec, err := svc.ImportBytes(context.Background(), []byte("<p>x</p>"), "page.dat", "text/html; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", rec.MediaType)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestImport_ReadErrors(t *testing.T) {
	svc, store := newService(t, WithMaxImportBytes(8))
	ctx := context.Background()

	_, err := svc.Import(ctx, failingReader{}, "a.txt", "")
	code, ok := artifacts.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, artifacts.ReasonImportReadError, code)
	assert.Contains(t, err.Error(), "disk on fire")

	_, err = svc.Import(ctx, strings.NewReader("123456789"), "big.txt", "")
	code, _ = artifacts.ReasonOf(err)
	assert.Equal(t, artifacts.ReasonImportReadError, code)

	_, err = svc.ImportFile(ctx, filepath.Join(t.TempDir(), "missing.txt"), "")
	code, _ = artifacts.ReasonOf(err)
	assert.Equal(t, artifacts.ReasonImportReadError, code)

	assert.Equal(t, 0, countBlobs(t, store.Root()))
}

func TestImportFile_UsesBaseName(t *testing.T) {
	svc, _ := newService(t)
	path := filepath.Join(t.TempDir(), "nested", "report.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("# Title"), 0o600))

	rec, err := svc.ImportFile(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, "report.md", rec.OriginalFilename)
	assert.Equal(t, "text/plain", rec.MediaType)
}

// brokenWrites fails every write after the first n.
type brokenWrites struct {
	artifacts.Store
	mu    sync.Mutex
	allow int
}

func (b *brokenWrites) StoreBytes(ctx context.Context, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allow == 0 {
		return "", errors.New("quota exceeded")
	}
	b.allow--
	return b.Store.StoreBytes(ctx, data)
}

func TestImport_StorageFailure(t *testing.T) {
	_, fsStore := newService(t)
	svc := New(&brokenWrites{Store: fsStore})

	_, err := svc.ImportBytes(context.Background(), []byte("x"), "x.txt", "")
	code, ok := artifacts.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, artifacts.ReasonStorageWriteError, code)
}

func TestExtract_DerivedStorageFailureIsValue(t *testing.T) {
	_, fsStore := newService(t)
	svc := New(&brokenWrites{Store: fsStore, allow: 1})
	ctx := context.Background()

	rec, err := svc.ImportBytes(ctx, []byte("source"), "s.txt", "")
	require.NoError(t, err)

	result := svc.Extract(ctx, rec)
	require.False(t, result.OK())
	assert.Equal(t, artifacts.ReasonStorageWriteError, result.Failure().ReasonCode)
}

func TestExtract_UnreadableArtifact(t *testing.T) {
	svc, store := newService(t)
	rec := artifacts.NewRecord([]byte("gone"), filepath.Join(store.Root(), "00", "00", strings.Repeat("0", 64)), "gone.txt", "text/plain", nil)

	result := svc.Extract(context.Background(), rec)
	require.False(t, result.OK())
	assert.Equal(t, artifacts.ReasonExtractParseError, result.Failure().ReasonCode)
}

func TestExtract_NoBackend(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	loc, err := store.StoreBytes(ctx, []byte{0x00, 0x01})
	require.NoError(t, err)
	rec := artifacts.NewRecord([]byte{0x00, 0x01}, loc, "blob.xyz", "application/octet-stream", nil)

	result := svc.Extract(ctx, rec)
	require.False(t, result.OK())
	assert.Equal(t, artifacts.ReasonExtractUnsupportedType, result.Failure().ReasonCode)
	assert.Equal(t, 1, countBlobs(t, store.Root()), "failed extraction must not write")
}

func TestExtract_DoesNotMutateSource(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	rec, err := svc.ImportBytes(ctx, []byte("immutable"), "i.txt", "")
	require.NoError(t, err)
	before := rec

	_ = svc.Extract(ctx, rec)
	assert.Equal(t, before, rec)
	assert.Equal(t, "immutable", readDerived(t, store, rec))
}

func TestExplain_ScoresEveryBackend(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.ImportBytes(ctx, testutil.PDF("scored"), "report.bin", "")
	require.NoError(t, err)

	scores, err := svc.Explain(ctx, rec)
	require.NoError(t, err)
	assert.ElementsMatch(t, svc.Registry().Names(), keys(scores))
	assert.Equal(t, 100, scores["pdf"])
	assert.Zero(t, scores["eml"])

	_, err = svc.Explain(ctx, artifacts.Record{ArtifactID: "art-gone", StorageLocation: rec.StorageLocation + ".gone"})
	require.Error(t, err)
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestVerify(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.ImportBytes(ctx, []byte("trust but verify"), "v.txt", "")
	require.NoError(t, err)
	require.NoError(t, svc.Verify(ctx, rec))

	require.NoError(t, os.Chmod(rec.StorageLocation, 0o600))
	require.NoError(t, os.WriteFile(rec.StorageLocation, []byte("tampered"), 0o600))
	err = svc.Verify(ctx, rec)
	require.Error(t, err)
	assert.True(t, IsVerifyError(err))
}
