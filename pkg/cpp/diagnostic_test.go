package cpp

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWarning(t *testing.T) {
	tests := []struct {
		arg  string
		want Warnings
	}{
		{"undef", Warnings(WarningUndef)},
		{"Wundef", Warnings(WarningUndef)},
		{"endif-labels", Warnings(WarningEndifLabels)},
		{"import", Warnings(WarningImport)},
		{"error", Warnings(WarningError)},
		{"all", AllWarnings},
		{"ALL", AllWarnings},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := ParseWarning(tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseWarning("bogus")
	assert.EqualError(t, err, `unknown warning "bogus"`)
	assert.False(t, AllWarnings.Has(WarningError))
}

func TestFeatures(t *testing.T) {
	var fs Features
	assert.False(t, fs.Has(FeatureLinemarkers))
	fs = fs.With(FeatureLinemarkers).With(FeaturePragmaOnce)
	assert.True(t, fs.Has(FeatureLinemarkers))
	assert.True(t, fs.Has(FeaturePragmaOnce))
	assert.False(t, fs.Has(FeatureDebug))
}

func TestDiagnosticError(t *testing.T) {
	d := &Diagnostic{Kind: DiagWarning, Loc: SourceLoc{File: "a.c", Line: 3, Column: 5}, Message: "careful"}
	assert.True(t, d.IsWarning())
	assert.Contains(t, d.Error(), "warning: careful")
	assert.Contains(t, d.Error(), "a.c")
	assert.Equal(t, "lexer error", DiagLexer.String())
	assert.Equal(t, "syntax error", DiagSyntax.String())
}

func TestDefaultListener(t *testing.T) {
	logger, hook := test.NewNullLogger()
	l := NewDefaultListener(logger)

	pp, err := NewPreprocessor(PreprocessorOptions{Listener: l, Warnings: Warnings(WarningUndef)})
	require.NoError(t, err)
	pp.AddInputString("#if FOO\n#endif\n#error bad\nx\n", "main.c")
	out, err := pp.All()
	require.NoError(t, err)
	assert.Equal(t, "\n\n\nx\n", SText(out))

	assert.Equal(t, 1, l.Warnings)
	assert.Equal(t, 1, l.Errors)
	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.WarnLevel, entries[0].Level)
	assert.Equal(t, logrus.ErrorLevel, entries[1].Level)
	assert.Equal(t, "error: #error bad", entries[1].Message)
	assert.Equal(t, "main.c", entries[1].Data["file"])
	assert.Equal(t, 3, entries[1].Data["line"])
}

func TestDebugLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	pp, err := NewPreprocessor(PreprocessorOptions{Logger: logger, Features: Features(FeatureDebug)})
	require.NoError(t, err)
	pp.AddInputString("#define X 1\nX\n", "main.c")
	_, err = pp.All()
	require.NoError(t, err)

	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "pp: define")
	assert.Contains(t, messages, "pp: expanding")
	assert.Contains(t, messages, "pp: returning token")
}
