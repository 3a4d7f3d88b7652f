// Package paths maps legacy absolute paths, as they appear in job definitions
// and logs, onto files inside a snapshot directory.
package paths

import (
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rohankatakam/jobtriage/internal/logging"
)

// Resolution confidences, strongest first.
const (
	ConfidenceExact         = 1.0
	ConfidenceCaseFolded    = 0.9
	ConfidenceUniqueName    = 0.7
	ConfidenceAmbiguousName = 0.5
)

type prefixMapping struct {
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: specific directories before the generic /home/<dir>/ rule.
var mappings = []prefixMapping{
	{regexp.MustCompile(`^/home/procs/`), "procs/"},
	{regexp.MustCompile(`^/home/master/`), "master/"},
	{regexp.MustCompile(`^/home/control/`), "control/"},
	{regexp.MustCompile(`^/home/insert/`), "insert/"},
	{regexp.MustCompile(`^/home/docdef/`), "docdef/"},
	{regexp.MustCompile(`^/home/util/`), "master/"},
	{regexp.MustCompile(`^/home/([^/]+)/`), "${1}/"},
}

// searchDirs are scanned by file name when no prefix mapping lands on a file.
var searchDirs = []string{"procs", "master", "control", "insert", "docdef"}

// Resolution is the outcome of mapping one legacy path. Path is
// snapshot-relative with forward slashes; empty means unresolved.
type Resolution struct {
	Path       string  `json:"path"`
	Confidence float64 `json:"confidence"`
}

// Found reports whether the path was located in the snapshot.
func (r Resolution) Found() bool {
	return r.Path != ""
}

// Normalize lowercases a path, converts backslashes and trims whitespace.
func Normalize(p string) string {
	return strings.TrimSpace(strings.ToLower(strings.ReplaceAll(p, `\`, "/")))
}

// Resolver resolves legacy paths against one snapshot root.
type Resolver struct {
	root   string
	cache  *Cache
	logger *slog.Logger

	indexOnce sync.Once
	index     map[string][]string // lowercased base name -> sorted relative paths, per search dir order
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache memoizes resolutions in a persistent cache.
func WithCache(c *Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// NewResolver creates a resolver rooted at the snapshot directory.
func NewResolver(root string, opts ...Option) *Resolver {
	r := &Resolver{
		root:   filepath.Clean(root),
		logger: logging.Component("paths"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the snapshot root.
func (r *Resolver) Root() string {
	return r.root
}

// Abs joins a snapshot-relative path onto the root.
func (r *Resolver) Abs(rel string) string {
	return filepath.Join(r.root, filepath.FromSlash(rel))
}

// Exists reports whether a snapshot-relative path names an existing file.
func (r *Resolver) Exists(rel string) bool {
	if rel == "" {
		return false
	}
	_, err := os.Stat(r.Abs(rel))
	return err == nil
}

// Resolve maps a legacy path into the snapshot.
//
// Prefix mappings are tried first: an existing target scores 1.0, a
// case-insensitive hit 0.9. Failing that, the base name is searched under
// the known snapshot directories: a unique hit scores 0.7, several hits 0.5
// (the lexically first wins). Unresolvable paths return a zero Resolution.
func (r *Resolver) Resolve(legacy string) Resolution {
	normalized := Normalize(legacy)
	if normalized == "" {
		return Resolution{}
	}

	if r.cache != nil {
		if res, ok := r.cache.Get(r.root, normalized); ok {
			return res
		}
	}

	res := r.resolve(normalized)

	if r.cache != nil {
		if err := r.cache.Put(r.root, normalized, res); err != nil {
			r.logger.Debug("path cache write failed", "path", normalized, "error", err)
		}
	}
	return res
}

func (r *Resolver) resolve(normalized string) Resolution {
	for _, m := range mappings {
		if !m.pattern.MatchString(normalized) {
			continue
		}
		rel := m.pattern.ReplaceAllString(normalized, m.replacement)
		if r.Exists(rel) {
			return Resolution{Path: rel, Confidence: ConfidenceExact}
		}
		if found := r.findCaseInsensitive(rel); found != "" {
			return Resolution{Path: found, Confidence: ConfidenceCaseFolded}
		}
	}

	name := path.Base(normalized)
	if name == "" || name == "/" || name == "." {
		return Resolution{}
	}
	hits := r.byName(name)
	switch {
	case len(hits) == 1:
		return Resolution{Path: hits[0], Confidence: ConfidenceUniqueName}
	case len(hits) > 1:
		return Resolution{Path: hits[0], Confidence: ConfidenceAmbiguousName}
	}
	return Resolution{}
}

// findCaseInsensitive walks rel one segment at a time, matching each segment
// against directory entries without regard to case.
func (r *Resolver) findCaseInsensitive(rel string) string {
	current := r.root
	var walked []string
	for _, part := range strings.Split(rel, "/") {
		if part == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(current, part)); err == nil {
			current = filepath.Join(current, part)
			walked = append(walked, part)
			continue
		}
		entries, err := os.ReadDir(current)
		if err != nil {
			return ""
		}
		match := ""
		for _, e := range entries {
			if strings.EqualFold(e.Name(), part) {
				match = e.Name()
				break
			}
		}
		if match == "" {
			return ""
		}
		current = filepath.Join(current, match)
		walked = append(walked, match)
	}
	if len(walked) == 0 {
		return ""
	}
	return strings.Join(walked, "/")
}

// byName returns snapshot-relative files whose base name equals name
// (case-insensitively). Hits come from the first search directory that has
// any, sorted.
func (r *Resolver) byName(name string) []string {
	r.indexOnce.Do(r.buildIndex)
	return r.index[strings.ToLower(name)]
}

func (r *Resolver) buildIndex() {
	r.index = make(map[string][]string)
	for _, dir := range searchDirs {
		perDir := make(map[string][]string)
		base := filepath.Join(r.root, dir)
		err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(r.root, p)
			if relErr != nil {
				return nil
			}
			key := strings.ToLower(d.Name())
			perDir[key] = append(perDir[key], filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			r.logger.Debug("index walk failed", "dir", dir, "error", err)
		}
		for name, hits := range perDir {
			if _, taken := r.index[name]; taken {
				continue
			}
			sort.Strings(hits)
			r.index[name] = hits
		}
	}
	r.logger.Debug("built file name index", "root", r.root, "names", len(r.index))
}
