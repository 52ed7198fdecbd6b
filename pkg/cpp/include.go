// Include path handling for the C preprocessor.
package cpp

import (
	"bufio"
	"bytes"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// IncludeKind distinguishes between <file> and "file" includes.
type IncludeKind int

const (
	IncludeQuoted IncludeKind = iota // "file" form
	IncludeAngled                    // <file> form
)

// MaxIncludeDepth is the maximum allowed include nesting.
const MaxIncludeDepth = 200

// ErrFileNotFound is the cause of every IncludeError.
var ErrFileNotFound = errors.New("file not found")

// IncludeError indicates that an include file was not found.
type IncludeError struct {
	Filename string
	Kind     IncludeKind
	Searched []string
}

func (e *IncludeError) Error() string {
	return "File not found: " + e.Filename + " in " + strings.Join(e.Searched, " ")
}

// Cause lets errors.Cause and errors.Is see ErrFileNotFound.
func (e *IncludeError) Cause() error { return ErrFileNotFound }

func (e *IncludeError) Unwrap() error { return ErrFileNotFound }

type lexedFile struct {
	toks    []Token
	errs    []LexError
	size    int64
	modTime time.Time
}

// IncludeResolver finds and loads included files. Files are looked up on
// an afero filesystem and their tokens are cached, so repeated loads of
// the same header (for example during replay) do not lex it again.
type IncludeResolver struct {
	Fs             afero.Fs
	QuotePaths     []string // -iquote directories, "file" form only
	SystemPaths    []string // -I directories
	FrameworkPaths []string // searched as foo.framework/Headers for <foo/bar.h>

	cache *lru.Cache[string, lexedFile]
}

// DefaultCacheSize is the number of lexed files kept by a resolver.
const DefaultCacheSize = 256

// NewIncludeResolver creates a resolver over fs. A nil fs means the
// operating system's filesystem.
func NewIncludeResolver(fs afero.Fs) *IncludeResolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	cache, err := lru.New[string, lexedFile](DefaultCacheSize)
	if err != nil {
		panic(err)
	}
	return &IncludeResolver{Fs: fs, cache: cache}
}

func (r *IncludeResolver) isFile(path string) bool {
	info, err := r.Fs.Stat(path)
	return err == nil && !info.IsDir()
}

func (r *IncludeResolver) isDir(path string) bool {
	ok, err := afero.IsDir(r.Fs, path)
	return err == nil && ok
}

type searchDir struct {
	dir       string
	framework bool
}

// searchList returns the directories consulted for an include of the
// given kind from currentFile.
func (r *IncludeResolver) searchList(kind IncludeKind, currentFile string) []searchDir {
	var dirs []searchDir
	if kind == IncludeQuoted {
		if currentFile != "" {
			dirs = append(dirs, searchDir{dir: filepath.Dir(currentFile)})
		}
		for _, d := range r.QuotePaths {
			dirs = append(dirs, searchDir{dir: d})
		}
	} else {
		for _, d := range r.FrameworkPaths {
			dirs = append(dirs, searchDir{dir: d, framework: true})
		}
	}
	for _, d := range r.SystemPaths {
		dirs = append(dirs, searchDir{dir: d})
	}
	return dirs
}

func (d searchDir) candidate(name string) (string, bool) {
	if !d.framework {
		return filepath.Join(d.dir, name), true
	}
	slash := strings.IndexByte(name, '/')
	if slash < 0 {
		return "", false
	}
	return filepath.Join(d.dir, name[:slash]+".framework", "Headers", name[slash+1:]), true
}

// Resolve finds the file named by an include directive in currentFile.
// With next set (#include_next) the search resumes after the directory
// in which currentFile itself was found.
func (r *IncludeResolver) Resolve(name string, kind IncludeKind, currentFile string, next bool) (string, error) {
	if filepath.IsAbs(name) {
		if r.isFile(name) {
			return filepath.Clean(name), nil
		}
		return "", &IncludeError{Filename: name, Kind: kind, Searched: []string{"/"}}
	}

	dirs := r.searchList(kind, currentFile)
	if next {
		dirs = r.afterCurrent(dirs, currentFile)
	}
	var searched []string
	for _, d := range dirs {
		path, ok := d.candidate(name)
		if !ok {
			continue
		}
		searched = append(searched, d.dir)
		if r.isFile(path) {
			return filepath.Clean(path), nil
		}
	}
	return "", &IncludeError{Filename: name, Kind: kind, Searched: searched}
}

func (r *IncludeResolver) afterCurrent(dirs []searchDir, currentFile string) []searchDir {
	cur := filepath.Clean(filepath.Dir(currentFile))
	for i, d := range dirs {
		if filepath.Clean(d.dir) == cur {
			return dirs[i+1:]
		}
	}
	return dirs
}

// Load returns the tokens of the file at path, lexing it unless a cached
// copy with the same size and modification time exists.
func (r *IncludeResolver) Load(path string) ([]Token, []LexError, error) {
	info, err := r.Fs.Stat(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "stat %s", path)
	}
	if f, ok := r.cache.Get(path); ok && f.size == info.Size() && f.modTime.Equal(info.ModTime()) {
		return f.toks, f.errs, nil
	}
	content, err := afero.ReadFile(r.Fs, path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", path)
	}
	toks, errs := Lex(string(content), path)
	r.cache.Add(path, lexedFile{toks: toks, errs: errs, size: info.Size(), modTime: info.ModTime()})
	return toks, errs, nil
}

// DetectSystemPaths asks the host C compiler for its include directories
// and appends the ones that exist to SystemPaths and FrameworkPaths.
func (r *IncludeResolver) DetectSystemPaths() {
	for _, compiler := range []string{"cc", "gcc", "clang"} {
		path, err := exec.LookPath(compiler)
		if err != nil {
			continue
		}
		sys, frameworks := queryCompiler(path)
		if len(sys) == 0 && len(frameworks) == 0 {
			continue
		}
		for _, p := range sys {
			if r.isDir(p) {
				r.SystemPaths = append(r.SystemPaths, p)
			}
		}
		for _, p := range frameworks {
			if r.isDir(p) {
				r.FrameworkPaths = append(r.FrameworkPaths, p)
			}
		}
		return
	}
}

func queryCompiler(compiler string) (sys, frameworks []string) {
	cmd := exec.Command(compiler, "-v", "-E", "-x", "c", "-")
	cmd.Stdin = strings.NewReader("")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	_ = cmd.Run() // the search list is on stderr either way

	return parseCompilerOutput(stderr.String())
}

// parseCompilerOutput extracts the include search list from the output
// of cc -v -E.
func parseCompilerOutput(output string) (sys, frameworks []string) {
	inSearchList := false
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "search starts here:"):
			inSearchList = true
		case strings.Contains(line, "End of search list"):
			inSearchList = false
		case inSearchList:
			path := strings.TrimSpace(line)
			if dir, ok := strings.CutSuffix(path, " (framework directory)"); ok {
				frameworks = append(frameworks, dir)
			} else if path != "" {
				sys = append(sys, path)
			}
		}
	}
	return sys, frameworks
}
