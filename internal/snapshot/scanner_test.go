package snapshot

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/jobtriage/internal/config"
	"github.com/rohankatakam/jobtriage/internal/paths"
	"github.com/rohankatakam/jobtriage/internal/storage"
)

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, data, 0o644))
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path, dir, want string
	}{
		{"procs/a.procs", "procs", "procs"},
		{"master/a.sh", "master", "script"},
		{"master/a.pl", "master", "script"},
		{"control/a.control", "control", "control"},
		{"insert/a.ins", "insert", "insert"},
		{"docdef/A.DFA", "docdef", "docdef"},
		{"master/readme.txt", "master", "master"},
		{"x/readme.txt", "", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.path, tt.dir))
		})
	}
}

func TestContentPolicy(t *testing.T) {
	p := newContentPolicy([]string{".sh", ".DFA"}, []string{".pdf"}, 100)
	assert.True(t, p.wantsText("a.sh", 10))
	assert.True(t, p.wantsText("a.dfa", 10))
	assert.True(t, p.wantsText("Makefile", 10))
	assert.False(t, p.wantsText("a.pdf", 10))
	assert.False(t, p.wantsText("a.bin", 10))
	assert.False(t, p.wantsText("a.sh", 101))
}

func TestReadText(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.txt", []byte("hello"))
	writeFile(t, dir, "bad.txt", []byte{0xff, 0xfe, 'a'})
	writeFile(t, dir, "nul.txt", []byte("a\x00b"))

	text, ok := readText(filepath.Join(dir, "ok.txt"))
	assert.True(t, ok)
	assert.Equal(t, "hello", text)
	_, ok = readText(filepath.Join(dir, "bad.txt"))
	assert.False(t, ok)
	_, ok = readText(filepath.Join(dir, "nul.txt"))
	assert.False(t, ok)
	_, ok = readText(filepath.Join(dir, "missing.txt"))
	assert.False(t, ok)
}

func TestHash(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a", []byte("abc"))
	h, err := HashFile(filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h)
	assert.Equal(t, h, HashBytes([]byte("abc")))
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "procs/WCCUDS1.procs", []byte(`CID : WCCU
Application Type: Daily
__Processing Shell Script: /home/master/wccuds1_process.sh
`))
	writeFile(t, root, "master/wccuds1_process.sh", []byte("#!/bin/sh\necho run\n"))
	writeFile(t, root, "control/wccudl014.control", []byte("format_dfa=WCCUDL014\n"))
	writeFile(t, root, "docdef/WCCUDL014.dfa", []byte("DOCFORMAT"))
	writeFile(t, root, "docdef/print.pdf", []byte("%PDF-1.4"))
	writeFile(t, root, "docdef/.hidden/skip.dfa", []byte("x"))
	writeFile(t, root, "logs/ignored.log", []byte("x"))

	store, err := storage.NewSQLiteStore(":memory:", quietLogger())
	require.NoError(t, err)
	defer store.Close()

	cfg := config.Default().Snapshot
	cfg.Workers = 2
	s := NewScanner(store, paths.NewResolver(root), cfg, quietLogger())

	ctx := context.Background()
	res, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.FilesScanned)
	assert.Equal(t, 4, res.FilesWithContent)
	assert.Equal(t, 1, res.ProcsParsed)
	assert.Zero(t, res.Errors)
	assert.Equal(t, 2, res.Graph.NodesCreated)
	assert.Equal(t, 1, res.Graph.EdgesCreated)

	counts, err := store.ArtifactCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"procs": 1, "script": 1, "control": 1, "docdef": 2}, counts)

	pdf, err := store.Artifact(ctx, "docdef/print.pdf")
	require.NoError(t, err)
	assert.Empty(t, pdf.TextContent)
	assert.Equal(t, HashBytes([]byte("%PDF-1.4")), pdf.SHA256)

	content, ok, err := store.ProcContent(ctx, "wccuds1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, content, `"cid":"wccu"`)

	node, ok, err := store.NodeByKey(ctx, "script:wccuds1_process.sh")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "master/wccuds1_process.sh", node.CanonicalPath)

	// A rescan adds nothing new to the graph.
	again, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Graph.NodesCreated)
}

func TestScanMissingRoot(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:", quietLogger())
	require.NoError(t, err)
	defer store.Close()

	s := NewScanner(store, paths.NewResolver(filepath.Join(t.TempDir(), "nope")), config.Default().Snapshot, quietLogger())
	_, err = s.Scan(context.Background())
	assert.ErrorContains(t, err, "does not exist")
}
