package preproc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymyers/invcpp/pkg/cpp"
)

func lexS(t *testing.T, text string) []cpp.TokenS {
	t.Helper()
	toks, errs := cpp.Lex(text, "test.c")
	require.Empty(t, errs)
	out := make([]cpp.TokenS, len(toks))
	for i, tok := range toks {
		out[i] = cpp.S(tok)
	}
	return out
}

func texts(c cpp.Changes) []string {
	out := make([]string, len(c))
	for i, e := range c {
		out[i] = cpp.SText(e)
	}
	return out
}

func TestComputeChanges(t *testing.T) {
	produced := lexS(t, "a b c")
	tests := []struct {
		name   string
		edited string
		want   []string
	}{
		{"unchanged", "a b c", []string{"a", " ", "b", " ", "c"}},
		{"substitution", "a x c", []string{"a", " ", "x", " ", "c"}},
		{"grow", "a x y c", []string{"a", " ", "x y", " ", "c"}},
		{"append", "a b c d", []string{"a", " ", "b", " ", "c d"}},
		{"prepend", "z a b c", []string{"z a", " ", "b", " ", "c"}},
		{"delete all", "", []string{"", "", "", "", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeChanges(produced, tt.edited)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, texts(got)); diff != "" {
				t.Errorf("changes mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.edited, cpp.SText(got.Flatten()))
		})
	}
}

func TestComputeChangesFlattens(t *testing.T) {
	produced := lexS(t, "int a = f(1, 2);\n")
	for _, edited := range []string{
		"int a = f(1);\n",
		"long b = g(1, 2, 3);\n",
		"\n",
		"int a = f(1, 2);\nint b;\n",
	} {
		got, err := ComputeChanges(produced, edited)
		require.NoError(t, err)
		assert.Len(t, got, len(produced))
		assert.Equal(t, edited, cpp.SText(got.Flatten()))
	}
}

func TestComputeChangesDisables(t *testing.T) {
	produced := lexS(t, "a b")
	produced[2] = produced[2].WithDisables(cpp.NewDisables("X"))

	got, err := ComputeChanges(produced, "a c d")
	require.NoError(t, err)
	for _, tok := range got[2] {
		assert.True(t, tok.Disables.Contains("X"), "%v", tok)
	}
	assert.Zero(t, got[0][0].Disables.Len())
}

func TestComputeChangesErrors(t *testing.T) {
	_, err := ComputeChanges(lexS(t, "a"), "\"open")
	assert.Error(t, err)

	_, err = ComputeChanges(nil, "a")
	assert.Error(t, err)

	got, err := ComputeChanges(nil, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLift(t *testing.T) {
	tests := []struct {
		name   string
		source string
		edited string
		want   string
	}{
		{
			"argument edits",
			"#define xy x y\n#define add(x,y) x+y\nadd(a b,xy)z\n",
			"\n\nc d e f+x y\n",
			"#define xy x y\n#define add(x,y) x+y\nadd(c d e f,xy)\n",
		},
		{
			"edit after interior space",
			"#define add(x,y) x+y\nadd(a b,c)\n",
			"\na z+c\n",
			"#define add(x,y) x+y\nadd(a z,c)\n",
		},
		{
			"conditional branch",
			"#ifdef x\ny\n#else\nz\n#endif\n",
			"\n\n\na b\n\n",
			"#ifdef x\ny\n#else\na b\n#endif\n",
		},
		{
			"unchanged",
			"#define LOOP x LOOP\nLOOP\n",
			"\nx LOOP\n",
			"#define LOOP x LOOP\nLOOP\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := PreprocessString(tt.source, "test.c", nil)
			require.NoError(t, err)
			got, err := Lift(res, tt.edited)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLiftNotInvertible(t *testing.T) {
	res, err := PreprocessString("#define double(x) x x\ndouble(1)\n", "test.c", nil)
	require.NoError(t, err)
	require.Equal(t, "\n1 1\n", res.Output)

	_, err = Lift(res, "\n1 2 3\n")
	assert.ErrorIs(t, err, cpp.ErrNotInvertible)
}

func TestLiftRootCancel(t *testing.T) {
	res, err := PreprocessString("#define X 1\nX\n", "test.c", &Options{AllowRootCancel: true})
	require.NoError(t, err)
	got, err := Lift(res, "\n2\n")
	require.NoError(t, err)
	assert.Equal(t, "#define X 1\n2\n", got)
}

func TestPatch(t *testing.T) {
	assert.Empty(t, Patch("a\nb\n", "a\nb\n"))

	p := Patch("a\nb\n", "a\nc\n")
	assert.Contains(t, p, "@@ -")
	assert.Contains(t, p, "-b")
	assert.Contains(t, p, "+c")
}
