package feedfile

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// List returns the stored batches under paths. Directories are walked
// recursively; each root's files are sorted by name, which for batch names
// is chronological per sub-feed. Hidden files and files not ending in Ext
// are skipped inside directories but kept when named explicitly.
func List(paths ...string) ([]string, error) {
	var out []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			out = append(out, root)
			continue
		}
		var files []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if path != root && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Ext) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
		sort.Slice(files, func(i, j int) bool {
			bi, bj := filepath.Base(files[i]), filepath.Base(files[j])
			if bi != bj {
				return bi < bj
			}
			return files[i] < files[j]
		})
		out = append(out, files...)
	}
	return out, nil
}
