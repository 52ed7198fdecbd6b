package preproc

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymyers/invcpp/pkg/cpp"
)

func memFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func TestPreprocessString(t *testing.T) {
	res, err := PreprocessString("#define X 1\nX\n", "test.c", nil)
	require.NoError(t, err)
	assert.Equal(t, "\n1\n", res.Output)
	assert.Equal(t, "\n1\n", cpp.SText(res.Produced))
	assert.Equal(t, "#define X 1\nX\n", cpp.SText(res.Original))
	assert.Equal(t, 3, res.Trace.NumProduced())
	assert.True(t, res.Env().Macros.IsDefined("X"))

	doc := res.Document()
	assert.Equal(t, res.Produced, doc.Produced)
	assert.Same(t, res.Trace, doc.Trace)
}

func TestPreprocessFiles(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/inc/pre.h":  "#define P 9\n",
		"/src/a.c":    "#include <b.h>\nP A\n",
		"/src/b.h":    "#define A 2\n",
		"/src/next.c": "A P\n",
	})
	opts := &Options{
		Fs:           fs,
		IncludePaths: []string{"/src"},
		Includes:     []string{"/inc/pre.h"},
		Defines:      []string{"Q=3"},
	}
	res, err := Preprocess([]string{"/src/a.c", "/src/next.c"}, opts)
	require.NoError(t, err)
	assert.Equal(t, "\n\n\n\n9 2\n2 9\n", res.Output)

	_, err = Preprocess([]string{"/src/missing.c"}, opts)
	assert.Error(t, err)
}

func TestPreprocessLineMarkers(t *testing.T) {
	fs := memFs(t, map[string]string{"/src/a.c": "a\n"})
	res, err := Preprocess([]string{"/src/a.c"}, &Options{Fs: fs, LineMarkers: true})
	require.NoError(t, err)
	assert.Equal(t, "# 1 \"/src/a.c\"\na\n", res.Output)
	assert.Equal(t, "a\n", cpp.SText(res.Produced))
}

func TestPreprocessErrors(t *testing.T) {
	_, err := PreprocessString("#error stop\n", "test.c", nil)
	require.Error(t, err)
	var d *cpp.Diagnostic
	require.ErrorAs(t, err, &d)
	assert.Equal(t, "#error stop", d.Message)

	var seen []string
	listener := cpp.ListenerFunc(func(d *cpp.Diagnostic) error {
		seen = append(seen, d.Message)
		return nil
	})
	res, err := PreprocessString("#error stop\nx\n", "test.c", &Options{Listener: listener})
	require.NoError(t, err)
	assert.Equal(t, "\nx\n", res.Output)
	assert.Equal(t, []string{"#error stop"}, seen)

	_, err = PreprocessString("", "test.c", &Options{Defines: []string{"=1"}})
	assert.Error(t, err)
}

func TestExpandInputs(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/src/a.c":     "",
		"/src/d.c":     "",
		"/src/sub/b.c": "",
		"/src/sub/c.h": "",
	})
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"plain", []string{"main.c", "/src/a.c"}, []string{"main.c", "/src/a.c"}},
		{"double star", []string{"/src/**/*.c"}, []string{"/src/a.c", "/src/d.c", "/src/sub/b.c"}},
		{"class", []string{"/src/sub/[bc].*"}, []string{"/src/sub/b.c", "/src/sub/c.h"}},
		{"alternatives", []string{"/src/{a,d}.c", "x.c"}, []string{"/src/a.c", "/src/d.c", "x.c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandInputs(fs, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ExpandInputs(fs, []string{"/src/*.h"})
	assert.Error(t, err)
}
