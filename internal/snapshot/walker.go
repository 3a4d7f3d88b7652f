package snapshot

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// walkFiles returns every regular file under root/dir, sorted, skipping
// hidden directories. A missing dir yields no files.
func walkFiles(root, dir string) ([]string, error) {
	base := filepath.Join(root, dir)
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != base && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func shouldSkipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__pycache__"
}

// classify picks an artifact kind from the file extension, falling back to
// the scanned directory name.
func classify(path, dir string) string {
	switch ext := filepath.Ext(path); ext {
	case ".procs":
		return "procs"
	case ".sh", ".pl", ".py":
		return "script"
	case ".control":
		return "control"
	case ".ins":
		return "insert"
	case ".dfa", ".DFA":
		return "docdef"
	}
	if dir == "" {
		return "other"
	}
	return dir
}
