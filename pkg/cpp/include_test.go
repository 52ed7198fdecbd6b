package cpp

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFs builds an in-memory filesystem from path/content pairs.
func memFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func TestIncludeResolverResolve(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/src/main.c":                           "",
		"/src/local.h":                          "",
		"/src/sub/nested.h":                     "",
		"/quote/q.h":                            "",
		"/quote/both.h":                         "",
		"/sys/both.h":                           "",
		"/sys/sys.h":                            "",
		"/sys/local.h":                          "",
		"/abs/file.h":                           "",
		"/Frameworks/Foo.framework/Headers/f.h": "",
	})
	r := NewIncludeResolver(fs)
	r.QuotePaths = []string{"/quote"}
	r.SystemPaths = []string{"/sys"}
	r.FrameworkPaths = []string{"/Frameworks"}

	tests := []struct {
		name    string
		include string
		kind    IncludeKind
		want    string
	}{
		{"quoted in current dir", "local.h", IncludeQuoted, "/src/local.h"},
		{"angled skips current dir", "local.h", IncludeAngled, "/sys/local.h"},
		{"quoted subdirectory", "sub/nested.h", IncludeQuoted, "/src/sub/nested.h"},
		{"iquote before system", "both.h", IncludeQuoted, "/quote/both.h"},
		{"angled ignores iquote", "both.h", IncludeAngled, "/sys/both.h"},
		{"quoted falls back to system", "sys.h", IncludeQuoted, "/sys/sys.h"},
		{"absolute", "/abs/file.h", IncludeAngled, "/abs/file.h"},
		{"framework", "Foo/f.h", IncludeAngled, "/Frameworks/Foo.framework/Headers/f.h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.include, tt.kind, "/src/main.c", false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIncludeResolverNotFound(t *testing.T) {
	fs := memFs(t, map[string]string{"/src/main.c": "", "/src/only.h": ""})
	r := NewIncludeResolver(fs)
	r.SystemPaths = []string{"/sys"}

	for _, tt := range []struct {
		name    string
		include string
		kind    IncludeKind
	}{
		{"missing", "missing.h", IncludeQuoted},
		{"angled not in current dir", "only.h", IncludeAngled},
		{"missing absolute", "/nowhere.h", IncludeQuoted},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.include, tt.kind, "/src/main.c", false)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFileNotFound)
			var ie *IncludeError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.include, ie.Filename)
			assert.Equal(t, tt.kind, ie.Kind)
		})
	}
}

func TestIncludeResolverNext(t *testing.T) {
	fs := memFs(t, map[string]string{"/a/x.h": "", "/b/x.h": "", "/c/x.h": ""})
	r := NewIncludeResolver(fs)
	r.SystemPaths = []string{"/a", "/b", "/c"}

	got, err := r.Resolve("x.h", IncludeAngled, "/a/x.h", true)
	require.NoError(t, err)
	assert.Equal(t, "/b/x.h", got)

	got, err = r.Resolve("x.h", IncludeAngled, "/b/x.h", true)
	require.NoError(t, err)
	assert.Equal(t, "/c/x.h", got)

	_, err = r.Resolve("x.h", IncludeAngled, "/c/x.h", true)
	assert.ErrorIs(t, err, ErrFileNotFound)

	// Outside the search list the search starts from the beginning.
	got, err = r.Resolve("x.h", IncludeAngled, "/elsewhere/y.c", true)
	require.NoError(t, err)
	assert.Equal(t, "/a/x.h", got)
}

func TestIncludeResolverLoad(t *testing.T) {
	fs := memFs(t, map[string]string{"/h.h": "int a;\n"})
	r := NewIncludeResolver(fs)

	toks, errs, err := r.Load("/h.h")
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, "int a;\n", TokensToString(toks))
	assert.Equal(t, "/h.h", toks[0].Loc.File)

	again, _, err := r.Load("/h.h")
	require.NoError(t, err)
	assert.Equal(t, toks, again)

	require.NoError(t, afero.WriteFile(fs, "/h.h", []byte("long b;\n"), 0o644))
	changed, _, err := r.Load("/h.h")
	require.NoError(t, err)
	assert.Equal(t, "long b;\n", TokensToString(changed))

	_, _, err = r.Load("/missing.h")
	assert.Error(t, err)
}

func TestIncludeResolverLoadLexErrors(t *testing.T) {
	fs := memFs(t, map[string]string{"/bad.h": "/* open\n"})
	r := NewIncludeResolver(fs)

	_, errs, err := r.Load("/bad.h")
	require.NoError(t, err)
	assert.NotEmpty(t, errs)
}

func TestParseCompilerOutput(t *testing.T) {
	output := `Using built-in specs.
COLLECT_GCC=gcc
Target: aarch64-linux-gnu
#include "..." search starts here:
#include <...> search starts here:
 /usr/lib/gcc/include
 /usr/include
 /System/Library/Frameworks (framework directory)
End of search list.
 /not/in/list
`
	sys, frameworks := parseCompilerOutput(output)
	assert.Equal(t, []string{"/usr/lib/gcc/include", "/usr/include"}, sys)
	assert.Equal(t, []string{"/System/Library/Frameworks"}, frameworks)

	sys, frameworks = parseCompilerOutput("")
	assert.Empty(t, sys)
	assert.Empty(t, frameworks)
}

func TestIncludeError(t *testing.T) {
	err := &IncludeError{Filename: "test.h", Kind: IncludeQuoted, Searched: []string{"/a", "/b"}}
	assert.Equal(t, "File not found: test.h in /a /b", err.Error())
	assert.ErrorIs(t, err, ErrFileNotFound)
}
