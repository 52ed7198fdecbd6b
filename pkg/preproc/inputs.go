package preproc

import (
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ExpandInputs replaces every glob pattern in args by the files it
// matches on fs, sorted. "**" matches any number of directories.
// Arguments without glob syntax are kept as they are.
func ExpandInputs(fs afero.Fs, args []string) ([]string, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	var out []string
	for _, arg := range args {
		base, pattern := doublestar.SplitPattern(filepath.ToSlash(arg))
		if !hasMeta(pattern) {
			out = append(out, arg)
			continue
		}
		root := fs
		if base != "." {
			root = afero.NewBasePathFs(fs, base)
		}
		fsys := afero.NewIOFS(root)
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrapf(err, "bad pattern %q", arg)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("no input matches %q", arg)
		}
		sort.Strings(matches)
		for _, m := range matches {
			out = append(out, filepath.Join(base, filepath.FromSlash(m)))
		}
	}
	return out, nil
}

func hasMeta(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
