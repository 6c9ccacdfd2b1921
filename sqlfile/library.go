// Package sqlfile loads SQL text by name from a directory tree, in either
// compiled mode (an embedded filesystem read once and cached forever) or
// dynamic mode (re-read from disk on every lookup, for development). The
// query core treats loaded SQL as opaque text.
package sqlfile

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ext is the file extension a library serves.
const Ext = ".sql"

// Library resolves names to SQL text. A name is the file's path relative to
// the library root, without the .sql extension.
type Library struct {
	root    string
	fsys    fs.FS
	dynamic bool
	cache   map[string]string
}

// Compiled loads every .sql file under root in fsys once, up front.
// Typically fed a //go:embed filesystem; edits on disk after build are
// invisible, which is the point of compiled mode.
func Compiled(fsys fs.FS, root string) (*Library, error) {
	lib := &Library{root: root, fsys: fsys, cache: make(map[string]string)}

	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, Ext) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		lib.cache[nameFor(root, path)] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load sql library at %s: %w", root, err)
	}
	return lib, nil
}

// Dynamic serves .sql files from dir, re-reading on every Load so edits are
// observed immediately. Missing files surface at Load time, not here.
func Dynamic(dir string) *Library {
	return &Library{root: dir, dynamic: true}
}

// Load returns the SQL text for name.
func (l *Library) Load(name string) (string, error) {
	if l.dynamic {
		data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(name)+Ext))
		if err != nil {
			return "", fmt.Errorf("sql %q not found under %s: %w", name, l.root, err)
		}
		return string(data), nil
	}

	text, ok := l.cache[name]
	if !ok {
		return "", fmt.Errorf("sql %q not found under %s", name, l.root)
	}
	return text, nil
}

// Names lists every loadable name, sorted.
func (l *Library) Names() []string {
	var names []string

	if l.dynamic {
		_ = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(path, Ext) {
				rel, relErr := filepath.Rel(l.root, path)
				if relErr == nil {
					names = append(names, strings.TrimSuffix(filepath.ToSlash(rel), Ext))
				}
			}
			return nil
		})
	} else {
		for name := range l.cache {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names
}

// nameFor strips the root prefix and extension from an embedded path.
func nameFor(root, path string) string {
	rel := strings.TrimPrefix(path, root)
	rel = strings.TrimPrefix(rel, "/")
	return strings.TrimSuffix(rel, Ext)
}
