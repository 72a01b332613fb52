package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGo(t *testing.T, root, name, src string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
}

func TestCheck(t *testing.T) {
	root := t.TempDir()
	writeGo(t, root, "pdf/ok.go", "//go:build !nopdf\n\npackage pdf\n\nimport _ \"github.com/ledongthuc/pdf\"\n")
	writeGo(t, root, "pdf/bad.go", "package pdf\n\nimport _ \"github.com/ledongthuc/pdf\"\n")
	writeGo(t, root, "html/bad.go", "//go:build linux\n\npackage html\n\nimport _ \"golang.org/x/net/html/charset\"\n")
	writeGo(t, root, "gcs/ok.go", "//go:build gcp\n\npackage gcs\n\nimport _ \"cloud.google.com/go/storage\"\n")
	writeGo(t, root, "gcs/bad.go", "//go:build !gcp\n\npackage gcs\n\nimport _ \"google.golang.org/api/googleapi\"\n")
	writeGo(t, root, "gcs/bad_test.go", "package gcs\n\nimport _ \"cloud.google.com/go/storage\"\n")
	writeGo(t, root, "_skip/x.go", "package skip\n\nimport _ \"github.com/ledongthuc/pdf\"\n")

	violations, err := check(root, rules)
	require.NoError(t, err)
	require.Len(t, violations, 3)
	assert.Contains(t, violations[0], "gcs/bad.go:5")
	assert.Contains(t, violations[0], "no gcp tag")
	assert.Contains(t, violations[1], "html/bad.go")
	assert.Contains(t, violations[2], "pdf/bad.go")
	assert.Contains(t, violations[2], "-tags nopdf")
}

func TestRun_ModuleIsClean(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(filepath.Join("..", ".."), &stdout, &stderr)
	assert.Equal(t, 0, code, stdout.String()+stderr.String())
}

func TestRun_ParseError(t *testing.T) {
	root := t.TempDir()
	writeGo(t, root, "broken.go", "package\n")

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(root, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "parse")
}
