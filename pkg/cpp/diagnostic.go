package cpp

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Feature toggles optional preprocessor behavior.
type Feature uint

const (
	FeatureLinemarkers Feature = 1 << iota
	FeatureKeepComments
	FeatureKeepAllComments
	FeatureIncludeNext
	FeaturePragmaOnce
	FeatureDebug
)

// Features is a set of Feature flags.
type Features uint

// Has reports whether f is enabled.
func (fs Features) Has(f Feature) bool { return uint(fs)&uint(f) != 0 }

// With returns the set with f enabled.
func (fs Features) With(f Feature) Features { return Features(uint(fs) | uint(f)) }

// Warning selects a class of optional warnings.
type Warning uint

const (
	WarningUndef Warning = 1 << iota
	WarningEndifLabels
	WarningImport
	// WarningError turns every warning into an error.
	WarningError
)

// AllWarnings enables every warning class except WarningError.
const AllWarnings = Warnings(WarningUndef | WarningEndifLabels | WarningImport)

// Warnings is a set of Warning classes.
type Warnings uint

// Has reports whether w is enabled.
func (ws Warnings) Has(w Warning) bool { return uint(ws)&uint(w) != 0 }

// With returns the set with w enabled.
func (ws Warnings) With(w Warning) Warnings { return Warnings(uint(ws) | uint(w)) }

var warningNames = map[string]Warning{
	"undef":        WarningUndef,
	"endif-labels": WarningEndifLabels,
	"import":       WarningImport,
	"error":        WarningError,
}

// ParseWarning maps a -W argument to its warning class. "all" enables
// every class except "error".
func ParseWarning(name string) (Warnings, error) {
	name = strings.ToLower(strings.TrimPrefix(name, "W"))
	if name == "all" {
		return AllWarnings, nil
	}
	if w, ok := warningNames[name]; ok {
		return Warnings(w), nil
	}
	return 0, errors.Errorf("unknown warning %q", name)
}

// DiagnosticKind classifies a Diagnostic.
type DiagnosticKind int

const (
	DiagLexer DiagnosticKind = iota
	DiagSyntax
	DiagSemantic
	DiagWarning
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagLexer:
		return "lexer error"
	case DiagSyntax:
		return "syntax error"
	case DiagSemantic:
		return "error"
	case DiagWarning:
		return "warning"
	}
	return "unknown"
}

// Diagnostic is an error or warning reported during preprocessing.
type Diagnostic struct {
	Kind    DiagnosticKind
	Loc     SourceLoc
	Message string
}

// IsWarning reports whether the diagnostic is a warning.
func (d *Diagnostic) IsWarning() bool { return d.Kind == DiagWarning }

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Loc, d.Kind, d.Message)
}

// Listener receives diagnostics. Returning a non-nil error aborts
// preprocessing with that error; returning nil continues.
type Listener interface {
	Diagnose(d *Diagnostic) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(d *Diagnostic) error

// Diagnose calls f(d).
func (f ListenerFunc) Diagnose(d *Diagnostic) error { return f(d) }

// DefaultListener logs diagnostics and keeps counting. It never aborts.
type DefaultListener struct {
	Log      logrus.FieldLogger
	Errors   int
	Warnings int
}

// NewDefaultListener returns a listener logging to log.
func NewDefaultListener(log logrus.FieldLogger) *DefaultListener {
	return &DefaultListener{Log: log}
}

// Diagnose logs d with its location as fields.
func (l *DefaultListener) Diagnose(d *Diagnostic) error {
	entry := l.Log.WithFields(logrus.Fields{
		"file":   d.Loc.File,
		"line":   d.Loc.Line,
		"column": d.Loc.Column,
	})
	if d.IsWarning() {
		l.Warnings++
		entry.Warn(d.Message)
	} else {
		l.Errors++
		entry.Errorf("%s: %s", d.Kind, d.Message)
	}
	return nil
}
