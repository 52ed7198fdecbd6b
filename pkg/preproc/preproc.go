// Package preproc runs the invertible C preprocessor over files and
// lifts edits of its output back to the source.
package preproc

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/raymyers/invcpp/pkg/cpp"
)

// Options configures the preprocessing step
type Options struct {
	Fs             afero.Fs // nil means the OS filesystem
	IncludePaths   []string // -I directories
	QuotePaths     []string // -iquote directories
	FrameworkPaths []string // -F directories
	Defines        []string // -D macros, name or name=value
	Undefines      []string // -U macros
	Includes       []string // --include files, read before the inputs
	Features       cpp.Features
	Warnings       cpp.Warnings
	NoWarnings     bool
	LineMarkers    bool // Generate linemarkers in Output
	HostIncludes   bool // Append the host compiler's include directories
	Debug          bool

	// AllowRootCancel lets Lift replace top-level macro calls by their
	// edited expansion when the edit cannot be pushed into the call.
	AllowRootCancel bool

	Listener cpp.Listener
	Logger   logrus.FieldLogger
}

// Result is a finished preprocessor run.
type Result struct {
	Output   string       // output text, with linemarkers when enabled
	Original []cpp.TokenS // tokens of every input, in order
	Produced []cpp.TokenS // output tokens without linemarkers
	Trace    *cpp.ActionSequence

	pp              *cpp.Preprocessor
	allowRootCancel bool
}

// Document returns the run in its JSON trace form.
func (r *Result) Document() *cpp.TraceDocument {
	return &cpp.TraceDocument{Original: r.Original, Produced: r.Produced, Trace: r.Trace}
}

// Env returns the environment at the end of the run.
func (r *Result) Env() cpp.Environment { return r.pp.Env() }

func newPreprocessor(opts *Options) (*cpp.Preprocessor, error) {
	if opts == nil {
		opts = &Options{}
	}
	features := opts.Features
	if opts.LineMarkers {
		features = features.With(cpp.FeatureLinemarkers)
	}
	if opts.Debug {
		features = features.With(cpp.FeatureDebug)
	}
	pp, err := cpp.NewPreprocessor(cpp.PreprocessorOptions{
		Fs:             opts.Fs,
		IncludePaths:   opts.IncludePaths,
		QuotePaths:     opts.QuotePaths,
		FrameworkPaths: opts.FrameworkPaths,
		Defines:        opts.Defines,
		Undefines:      opts.Undefines,
		Features:       features,
		Warnings:       opts.Warnings,
		NoWarnings:     opts.NoWarnings,
		Listener:       opts.Listener,
		Logger:         opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	if opts.HostIncludes {
		pp.Resolver().DetectSystemPaths()
	}
	for _, f := range opts.Includes {
		pp.AddInputString(fmt.Sprintf("#include \"%s\"\n", escapeInclude(f)), "<command-line>")
	}
	return pp, nil
}

func escapeInclude(path string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(path)
}

// Preprocess runs the preprocessor over the named files, in order, and
// returns the output with its trace.
func Preprocess(filenames []string, opts *Options) (*Result, error) {
	pp, err := newPreprocessor(opts)
	if err != nil {
		return nil, err
	}
	for _, f := range filenames {
		if err := pp.AddInput(f); err != nil {
			return nil, errors.Wrapf(err, "reading input %s", f)
		}
	}
	return run(pp, opts)
}

// PreprocessString preprocesses C source code provided as a string.
func PreprocessString(source, filename string, opts *Options) (*Result, error) {
	pp, err := newPreprocessor(opts)
	if err != nil {
		return nil, err
	}
	pp.AddInputString(source, filename)
	return run(pp, opts)
}

func run(pp *cpp.Preprocessor, opts *Options) (*Result, error) {
	defer pp.Close()

	var sb strings.Builder
	produced := []cpp.TokenS{}
	for {
		tok, err := pp.Token()
		if err != nil {
			return nil, err
		}
		if tok.Type == cpp.PP_EOF {
			break
		}
		sb.WriteString(tok.Text)
		if tok.Type != cpp.PP_LINEMARKER {
			produced = append(produced, tok)
		}
	}
	res := &Result{
		Output:   sb.String(),
		Original: pp.Original(),
		Produced: produced,
		Trace:    pp.Trace(),
		pp:       pp,
	}
	if opts != nil {
		res.allowRootCancel = opts.AllowRootCancel
	}
	return res, nil
}
