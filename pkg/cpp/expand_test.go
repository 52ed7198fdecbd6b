package cpp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expandLine preprocesses the definitions followed by line and returns
// the output of line alone.
func expandLine(t *testing.T, defs []string, line string) string {
	t.Helper()
	input := line + "\n"
	if len(defs) > 0 {
		input = strings.Join(defs, "\n") + "\n" + input
	}
	out, _ := preprocess(t, PreprocessorOptions{}, input)
	prefix := strings.Repeat("\n", len(defs))
	require.True(t, strings.HasPrefix(out, prefix), "output %q", out)
	return strings.TrimSuffix(out[len(prefix):], "\n")
}

type expandCase struct {
	name string
	defs []string
	line string
	want string
}

func runExpandCases(t *testing.T, tests []expandCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandLine(t, tt.defs, tt.line))
		})
	}
}

func TestExpandObjectMacro(t *testing.T) {
	runExpandCases(t, []expandCase{
		{"simple", []string{"#define X 42"}, "int a = X;", "int a = 42;"},
		{"empty body", []string{"#define EMPTY"}, "a EMPTY b", "a  b"},
		{"chain", []string{"#define A B", "#define B 42"}, "A", "42"},
		{"defined later", []string{"#define A B"}, "A", "B"},
		{"redefined", []string{"#define X 1", "#define X 2"}, "X", "2"},
		{"undefined", []string{"#define X 1", "#undef X"}, "X", "X"},
		{"inside identifier", []string{"#define X 1"}, "XX X_ _X", "XX X_ _X"},
		{"not in literals", []string{"#define X 1"}, `"X" 'X'`, `"X" 'X'`},
	})
}

func TestExpandFunctionMacro(t *testing.T) {
	runExpandCases(t, []expandCase{
		{"one arg", []string{"#define f(x) x+1"}, "f(2)", "2+1"},
		{"two args", []string{"#define add(a, b) ((a)+(b))"}, "add(1, 2)", "((1)+(2))"},
		{"no params", []string{"#define f() 7"}, "f()", "7"},
		{"space before paren", []string{"#define f(x) [x]"}, "f (1)", "[1]"},
		{"nested parens", []string{"#define f(x) [x]"}, "f((a, b))", "[(a, b)]"},
		{"interior whitespace", []string{"#define f(x) [x]"}, "f( a  b )", "[a  b]"},
		{"run ending in newline", []string{"#define f(x) [x]"}, "f(a \nb)", "[a\nb]"},
		{"run ending in spaces", []string{"#define f(x) [x]"}, "f(a\n  b)", "[a  b]"},
		{"empty arg", []string{"#define f(x) [x]"}, "f()", "[]"},
		{"arg pre-expanded", []string{"#define X 1", "#define f(x) x"}, "f(X)", "1"},
		{"not invoked", []string{"#define f(x) x"}, "f + f", "f + f"},
		{"nested call", []string{"#define inc(x) x+1", "#define sqr(x) x*x"}, "inc(sqr(3))", "3*3+1"},
		{"call formed by rescan", []string{"#define f(x) x*2", "#define g f"}, "g(3)", "3*2"},
	})
}

func TestExpandRecursionPrevention(t *testing.T) {
	runExpandCases(t, []expandCase{
		{"self reference", []string{"#define LOOP x LOOP"}, "LOOP", "x LOOP"},
		{"mutual", []string{"#define A B", "#define B A"}, "A B", "A B"},
		{"function self reference", []string{"#define f(x) f(x)"}, "f(1)", "f(1)"},
		{"call inside argument", []string{"#define f(x) x", "#define g f(1)"}, "f(g)", "1"},
	})
}

func TestStringification(t *testing.T) {
	runExpandCases(t, []expandCase{
		{"simple", []string{"#define s(x) #x"}, "s(abc)", `"abc"`},
		{"whitespace collapses", []string{"#define s(x) #x"}, "s( a   +  b )", `"a + b"`},
		{"literals escaped", []string{"#define s(x) #x"}, `s(a "b\n" 'c')`, `"a \"b\\n\" 'c'"`},
		{"empty", []string{"#define s(x) #x"}, "s()", `""`},
		{"not pre-expanded", []string{"#define X 1", "#define s(x) #x"}, "s(X)", `"X"`},
	})
}

func TestTokenPasting(t *testing.T) {
	runExpandCases(t, []expandCase{
		{"identifiers", []string{"#define cat(a, b) a ## b"}, "cat(x, y)", "xy"},
		{"numbers", []string{"#define cat(a, b) a ## b"}, "cat(1, 2)", "12"},
		{"empty left", []string{"#define cat(a, b) a ## b"}, "cat(, z)", "z"},
		{"raw operands", []string{"#define X 1", "#define cat(a, b) a ## b"}, "cat(X, Y)", "XY"},
		{"result rescanned", []string{"#define XY 7", "#define cat(a, b) a ## b"}, "cat(X, Y)", "7"},
		{"chain", []string{"#define cat3(a, b, c) a ## b ## c"}, "cat3(p, q, r)", "pqr"},
		{"with body token", []string{"#define pre(x) pre_ ## x"}, "pre(name)", "pre_name"},
		{"object macro", []string{"#define T a ## b"}, "T", "ab"},
	})
}

func TestVariadicMacros(t *testing.T) {
	runExpandCases(t, []expandCase{
		{"va args", []string{"#define v(...) [__VA_ARGS__]"}, "v(1, 2,3)", "[1, 2,3]"},
		{"va args empty", []string{"#define v(...) [__VA_ARGS__]"}, "v()", "[]"},
		{"named", []string{"#define v(args...) f(args)"}, "v(a, b)", "f(a, b)"},
		{"after fixed", []string{"#define v(x, ...) x: __VA_ARGS__"}, "v(1, 2, 3)", "1: 2, 3"},
		{"missing variadic", []string{"#define v(x, ...) x: __VA_ARGS__"}, "v(1)", "1: "},
		{"comma swallowed", []string{"#define e(f, ...) g(f, ## __VA_ARGS__)"}, "e(1)", "g(1)"},
		{"comma kept", []string{"#define e(f, ...) g(f, ## __VA_ARGS__)"}, "e(1, 2)", "g(1,2)"},
	})
}

func TestBuiltinMacros(t *testing.T) {
	runExpandCases(t, []expandCase{
		{"line", nil, "__LINE__", "1"},
		{"line of call", []string{"#define L __LINE__", ""}, "L", "3"},
		{"file", nil, "__FILE__", `"test.c"`},
		{"counter", nil, "__COUNTER__ __COUNTER__ __COUNTER__", "0 1 2"},
	})
}

func TestExpandErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		diags []string
	}{
		{
			"too many args",
			"#define f(x) x\nf(1, 2)\n",
			"\nf(1, 2)\n",
			[]string{"macro f has 1 parameters but given 2 args"},
		},
		{
			"too few args",
			"#define f(x, y) x\nf(1)\n",
			"\nf(1)\n",
			[]string{"macro f has 2 parameters but given 1 args"},
		},
		{
			"unterminated call",
			"#define f(x) x\nf(1\n",
			"\nf(1\n",
			[]string{"EOF in macro args"},
		},
		{
			"paste at end",
			"#define T(a) a ##\nT(x)\n",
			"\nx ##\n",
			[]string{"Paste at end of expansion"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var diags diagnostics
			out, _ := preprocess(t, PreprocessorOptions{Listener: &diags}, tt.input)
			assert.Equal(t, tt.want, out)
			assert.Equal(t, tt.diags, diags.messages())
		})
	}
}

func TestExpansionDisables(t *testing.T) {
	_, pp := preprocess(t, PreprocessorOptions{}, "#define f(x) x LOOP\n#define LOOP f(LOOP)\nLOOP\n")
	produced := pp.Trace().Produced()

	var names []string
	for _, tok := range produced {
		if tok.Type == PP_IDENTIFIER {
			names = append(names, tok.Text)
			assert.True(t, tok.Disables.Contains("LOOP"), "%v", tok)
			assert.True(t, tok.Disables.Contains("f"), "%v", tok)
		}
	}
	assert.Equal(t, []string{"LOOP", "LOOP"}, names)
}

func TestTrailingPasteDisables(t *testing.T) {
	var diags diagnostics
	_, pp := preprocess(t, PreprocessorOptions{Listener: &diags}, "#define T(a) a ##\nT(x)\n")
	produced := pp.Trace().Produced()
	require.Len(t, produced, 5)

	for _, tok := range produced[1:4] {
		assert.True(t, tok.Disables.Equal(NewDisables("T")), "%v", tok)
	}
	assert.Equal(t, "##", produced[3].Text)
	assert.Equal(t, 0, produced[4].Disables.Len())
}
