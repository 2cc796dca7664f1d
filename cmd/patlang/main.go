// Command patlang runs a pattern language program against a binary file
// and prints the resulting pattern tree. It is a demonstration harness
// for the pl package, not a product in its own right (see SPEC_FULL.md's
// "CLI demo, not a product" design note) -- a real host embeds pl
// directly and supplies its own ByteSource/Logger/IncludeResolver.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/binlang/patlang"
	"github.com/binlang/patlang/ascii"
	"github.com/binlang/patlang/memsource"
)

var (
	flagTarget       string
	flagLittleEndian bool
	flagBigEndian    bool
	flagPatternLimit uint64
	flagArrayLimit   uint64
	flagRecursion    uint32
	flagAllowDanger  bool
	flagIncludeDirs  []string
	flagVerbose      bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ascii.Color(ascii.DefaultTheme.Error, "%v", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patlang <pattern-file>",
		Short: "Evaluate a pattern language program against a binary target",
		Args:  cobra.ExactArgs(1),
		RunE:  runPattern,
	}
	cmd.Flags().StringVar(&flagTarget, "target", "", "binary file to evaluate the pattern against (required)")
	cmd.Flags().BoolVar(&flagLittleEndian, "little-endian", true, "default to little-endian reads")
	cmd.Flags().BoolVar(&flagBigEndian, "big-endian", false, "default to big-endian reads")
	cmd.Flags().Uint64Var(&flagPatternLimit, "pattern-limit", 0x2000, "maximum number of patterns a run may create")
	cmd.Flags().Uint64Var(&flagArrayLimit, "array-limit", 0x1000, "maximum number of elements in one array")
	cmd.Flags().Uint32Var(&flagRecursion, "recursion-limit", 32, "maximum struct/array/call nesting depth")
	cmd.Flags().BoolVar(&flagAllowDanger, "allow-dangerous", false, "allow functions that create/delete sections (denied otherwise)")
	cmd.Flags().StringArrayVar(&flagIncludeDirs, "include-dir", nil, "directory searched for #include targets (repeatable)")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func runPattern(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(flagTarget)
	if err != nil {
		return fmt.Errorf("reading target: %w", err)
	}
	programBytes, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading pattern file: %w", err)
	}

	zlog, err := newZapLogger()
	if err != nil {
		return err
	}
	defer zlog.Sync()
	logger := &zapLogger{z: zlog.Sugar()}

	cfg := pl.NewConfig()
	if flagBigEndian {
		cfg.DefaultEndian = pl.EndianBig
	}
	cfg.PatternLimit = flagPatternLimit
	cfg.ArrayLimit = flagArrayLimit
	cfg.RecursionLimit = flagRecursion
	if flagAllowDanger {
		cfg.DangerousFunctions = pl.PermissionAllow
	} else {
		cfg.DangerousFunctions = pl.PermissionDeny
	}

	resolver := newDirResolver(flagIncludeDirs)
	byteSource := memsource.New(0, source)

	result, pragmas, err := pl.Run(context.Background(), string(programBytes), resolver, byteSource, cfg, logger, nil)
	if err != nil {
		return err
	}
	for k, v := range pragmas {
		logger.Log(pl.LogDebug, fmt.Sprintf("pragma %s = %s", k, v))
	}

	fmt.Print(pl.DumpTree(result.Tree, byteSource, cfg))
	if result.MainResult != nil {
		fmt.Printf("main() -> %s\n", result.MainResult.String())
	}
	return nil
}

// dirResolver implements pl.IncludeResolver by searching a fixed list
// of directories, the filesystem analogue of the teacher's import
// loader chain (grammar_import_loaders.go in the teacher's original
// form) adapted from grammar-file lookup to pattern-header lookup.
type dirResolver struct{ dirs []string }

func newDirResolver(dirs []string) *dirResolver { return &dirResolver{dirs: dirs} }

func (r *dirResolver) Resolve(path string) (string, bool) {
	for _, dir := range r.dirs {
		full := strings.TrimRight(dir, "/") + "/" + path
		if data, err := os.ReadFile(full); err == nil {
			return string(data), true
		}
	}
	if data, err := os.ReadFile(path); err == nil {
		return string(data), true
	}
	return "", false
}

func newZapLogger() (*zap.Logger, error) {
	if flagVerbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// zapLogger adapts a zap.SugaredLogger to pl.Logger so the evaluator's
// std::print/assert_warn output flows through the CLI's structured
// logging pipeline instead of bare stdout writes.
type zapLogger struct{ z *zap.SugaredLogger }

func (l *zapLogger) Log(level pl.LogLevel, message string) {
	switch level {
	case pl.LogDebug:
		l.z.Debug(message)
	case pl.LogInfo:
		l.z.Info(message)
	case pl.LogWarn:
		l.z.Warn(message)
	case pl.LogError:
		l.z.Error(message)
	}
}
