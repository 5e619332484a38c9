// Package filesystem lists snapshot files under a directory.
package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type Entry struct {
	Name         string
	Path         string
	SizeBytes    int64
	LastModified time.Time
}

type ScanOptions struct {
	// Pattern is matched against the base name with filepath.Match.
	Pattern  string
	MaxDepth int
}

// Scan walks root and returns regular files matching opts. A missing root
// yields no entries.
func Scan(root string, opts ScanOptions) ([]Entry, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(rootAbs); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	items := make([]Entry, 0, 16)
	err = filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == rootAbs {
				return walkErr
			}
			return nil
		}
		if opts.MaxDepth > 0 && depth(rootAbs, path) > opts.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if opts.Pattern != "" {
			if ok, _ := filepath.Match(opts.Pattern, d.Name()); !ok {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		items = append(items, Entry{
			Name:         d.Name(),
			Path:         path,
			SizeBytes:    info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	return items, err
}

// NewestFirst orders timestamp-named snapshots by name, descending. Names
// sort lexically in chronological order.
func NewestFirst(items []Entry) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Name > items[j].Name })
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}
