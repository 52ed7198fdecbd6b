package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/raymyers/invcpp/pkg/cpp"
	"github.com/raymyers/invcpp/pkg/preproc"
)

var version = "0.1.0"

// appFs is the filesystem inputs, includes and outputs go through.
var appFs afero.Fs = afero.NewOsFs()

// Preprocessor options
var (
	includePaths   []string
	quotePaths     []string
	frameworkPaths []string
	defineFlags    []string
	undefineFlags  []string
	includeFiles   []string
	warningFlags   []string
	noWarnings     bool
	lineMarkers    bool
	keepComments   bool
	hostIncludes   bool
	debug          bool
	configFile     string
	outputFile     string
)

// Root command
var traceFile string

// lift subcommand
var (
	liftDiff        bool
	allowRootCancel bool
)

// resetFlags restores every flag variable to its default.
func resetFlags() {
	includePaths, quotePaths, frameworkPaths = nil, nil, nil
	defineFlags, undefineFlags, includeFiles, warningFlags = nil, nil, nil, nil
	noWarnings, lineMarkers, keepComments, hostIncludes, debug = false, false, false, false, false
	configFile, outputFile, traceFile = "", "", ""
	liftDiff, allowRootCancel = false, false
}

// gccStyleFlags are long flags GCC spells with a single dash.
var gccStyleFlags = []string{"iquote", "include"}

// normalizeFlags converts GCC-style single-dash flags to double-dash.
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range gccStyleFlags {
			if arg == "-"+flagName || strings.HasPrefix(arg, "-"+flagName+"=") {
				result[i] = "-" + arg
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "invcpp [files...]",
		Short: "invcpp is an invertible C preprocessor",
		Long: `invcpp preprocesses C sources and records a trace of every
rewrite it performs. With the trace, edits made to the preprocessed
output can be lifted back to the original source.

Inputs are files or glob patterns. Without inputs, stdin is read.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return doPreprocess(cmd.InOrStdin(), out, errOut, args)
		},
	}

	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringArrayVarP(&includePaths, "include-path", "I", nil, "add directory to include search path")
	flags.StringArrayVar(&quotePaths, "iquote", nil, "add directory to the quoted include search path")
	flags.StringArrayVarP(&frameworkPaths, "framework-path", "F", nil, "add framework directory")
	flags.StringArrayVarP(&defineFlags, "define", "D", nil, "define macro (name or name=value)")
	flags.StringArrayVarP(&undefineFlags, "undefine", "U", nil, "undefine macro")
	flags.StringArrayVar(&includeFiles, "include", nil, "process file as if #include \"file\" appeared first")
	flags.StringArrayVarP(&warningFlags, "warning", "W", nil, "enable warning (undef, endif-labels, import, error, all)")
	flags.BoolVarP(&noWarnings, "no-warnings", "w", false, "suppress all warnings")
	flags.BoolVarP(&keepComments, "comments", "C", false, "keep comments in the output")
	flags.BoolVar(&hostIncludes, "host-includes", false, "search the host compiler's include directories")
	flags.BoolVar(&debug, "debug", false, "log every preprocessor step")
	flags.StringVar(&configFile, "config", "", "read flag defaults from a YAML file")
	flags.StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")

	rootCmd.Flags().BoolVar(&lineMarkers, "linemarkers", false, "emit # linemarkers on file changes")
	rootCmd.Flags().StringVar(&traceFile, "trace", "", "write the rewrite trace as JSON to file")

	rootCmd.AddCommand(newLiftCmd(out, errOut))
	return rootCmd
}

func newLiftCmd(out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lift SOURCE EDITED",
		Short: "Lift an edited preprocessor output back to the source",
		Long: `lift preprocesses SOURCE, diffs EDITED against the output and
prints the source that preprocesses to EDITED. Edits that cannot be
expressed in the source are an error. EDITED must not contain
linemarkers. --include files are not applied.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doLift(out, errOut, args[0], args[1])
		},
	}
	cmd.Flags().BoolVar(&liftDiff, "diff", false, "print a patch against SOURCE instead of the lifted text")
	cmd.Flags().BoolVar(&allowRootCancel, "allow-root-cancel", false, "allow replacing top-level macro calls by their edited expansion")
	return cmd
}

// loadConfig reads --config and applies its values to every flag not set
// on the command line.
func loadConfig(cmd *cobra.Command) error {
	if configFile == "" {
		return nil
	}
	v := viper.New()
	v.SetFs(appFs)
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading config %s", configFile)
	}
	var ferr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if ferr != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		var values []string
		if f.Value.Type() == "stringArray" {
			values = v.GetStringSlice(f.Name)
		} else {
			values = []string{v.GetString(f.Name)}
		}
		for _, val := range values {
			if err := cmd.Flags().Set(f.Name, val); err != nil {
				ferr = errors.Wrapf(err, "config %s: %s", configFile, f.Name)
				return
			}
		}
	})
	return ferr
}

func newLogger(errOut io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(errOut)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// buildOptions turns the flags into preprocessor options.
func buildOptions(listener cpp.Listener, log logrus.FieldLogger) (*preproc.Options, error) {
	opts := &preproc.Options{
		Fs:             appFs,
		IncludePaths:   includePaths,
		QuotePaths:     quotePaths,
		FrameworkPaths: frameworkPaths,
		Defines:        defineFlags,
		Undefines:      undefineFlags,
		Includes:       includeFiles,
		Features:       cpp.Features(0).With(cpp.FeaturePragmaOnce).With(cpp.FeatureIncludeNext),
		NoWarnings:     noWarnings,
		LineMarkers:    lineMarkers,
		HostIncludes:   hostIncludes,
		Debug:          debug,
		Listener:       listener,
		Logger:         log,
	}
	if keepComments {
		opts.Features = opts.Features.With(cpp.FeatureKeepComments)
	}
	for _, w := range warningFlags {
		ws, err := cpp.ParseWarning(w)
		if err != nil {
			return nil, err
		}
		opts.Warnings |= ws
	}
	return opts, nil
}

func doPreprocess(stdin io.Reader, out, errOut io.Writer, args []string) error {
	log := newLogger(errOut)
	listener := cpp.NewDefaultListener(log)
	opts, err := buildOptions(listener, log)
	if err != nil {
		return err
	}

	var res *preproc.Result
	if len(args) == 0 {
		src, err := io.ReadAll(stdin)
		if err != nil {
			return errors.Wrap(err, "reading stdin")
		}
		res, err = preproc.PreprocessString(string(src), "<stdin>", opts)
		if err != nil {
			return err
		}
	} else {
		inputs, err := preproc.ExpandInputs(appFs, args)
		if err != nil {
			return err
		}
		res, err = preproc.Preprocess(inputs, opts)
		if err != nil {
			return err
		}
	}

	if err := writeOutput(out, res.Output); err != nil {
		return err
	}
	if traceFile != "" {
		f, err := appFs.Create(traceFile)
		if err != nil {
			return errors.Wrap(err, "creating trace file")
		}
		defer f.Close()
		if err := cpp.WriteTrace(f, res.Document()); err != nil {
			return errors.Wrap(err, "writing trace")
		}
	}
	if listener.Errors > 0 {
		return errors.Errorf("%d errors", listener.Errors)
	}
	return nil
}

func doLift(out, errOut io.Writer, source, edited string) error {
	log := newLogger(errOut)
	listener := cpp.NewDefaultListener(log)
	opts, err := buildOptions(listener, log)
	if err != nil {
		return err
	}
	opts.Includes = nil
	opts.LineMarkers = false
	opts.AllowRootCancel = allowRootCancel

	res, err := preproc.Preprocess([]string{source}, opts)
	if err != nil {
		return err
	}
	if listener.Errors > 0 {
		return errors.Errorf("%s: %d errors", source, listener.Errors)
	}
	editedText, err := afero.ReadFile(appFs, edited)
	if err != nil {
		return errors.Wrap(err, "reading edited output")
	}
	lifted, err := preproc.Lift(res, string(editedText))
	if err != nil {
		return err
	}
	if !liftDiff {
		return writeOutput(out, lifted)
	}
	sourceText, err := afero.ReadFile(appFs, source)
	if err != nil {
		return errors.Wrap(err, "reading source")
	}
	return writeOutput(out, preproc.Patch(string(sourceText), lifted))
}

func writeOutput(out io.Writer, text string) error {
	if outputFile == "" {
		_, err := io.WriteString(out, text)
		return err
	}
	return errors.Wrap(afero.WriteFile(appFs, outputFile, []byte(text), 0644), "writing output")
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "invcpp: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
