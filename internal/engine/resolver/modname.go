package resolver

import (
	"path/filepath"
	"strings"
)

// ModuleNameForPath derives the dotted name of a file by climbing package
// markers: pkg/sub/a.py becomes pkg.sub.a when pkg and sub hold __init__.py.
func ModuleNameForPath(path string) string {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var parts []string
	if stem != "__init__" {
		parts = append(parts, stem)
	}
	for isPackageDir(dir) {
		parts = append(parts, filepath.Base(dir))
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if len(parts) == 0 {
		return stem
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}
