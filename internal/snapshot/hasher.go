package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// HashFile streams a file through SHA-256. Used for artifacts whose
// content is not kept as text.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// contentPolicy decides which files have their text stored.
type contentPolicy struct {
	text     map[string]bool
	metaOnly map[string]bool
	maxSize  int64
}

func newContentPolicy(textExts, metaExts []string, maxSize int64) contentPolicy {
	p := contentPolicy{
		text:     make(map[string]bool),
		metaOnly: make(map[string]bool),
		maxSize:  maxSize,
	}
	for _, e := range textExts {
		p.text[strings.ToLower(e)] = true
	}
	for _, e := range metaExts {
		p.metaOnly[strings.ToLower(e)] = true
	}
	return p
}

// wantsText reports whether a file is a candidate for text storage.
// Extension-less files are probed.
func (p contentPolicy) wantsText(path string, size int64) bool {
	if p.maxSize > 0 && size > p.maxSize {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if p.metaOnly[ext] {
		return false
	}
	return ext == "" || p.text[ext]
}

// readText returns the file as text, or false when it is not valid UTF-8 or
// contains NUL bytes.
func readText(path string) (string, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(raw) || bytes.IndexByte(raw, 0) >= 0 {
		return "", false
	}
	return string(raw), true
}
