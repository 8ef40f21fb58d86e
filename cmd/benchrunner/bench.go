package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bench/bench"
	"github.com/wippyai/wasm-bench/engine"
	"github.com/wippyai/wasm-bench/errors"
)

// Report formats.
const (
	formatText = "text"
	formatJSON = "json"
)

// settings is one benchmark invocation resolved from flags, environment and
// config file.
type settings struct {
	bench    bench.Config
	engine   engine.Config
	format   string
	chart    string
	guestLog string
	progress bool

	// suite is set when the path is a directory of benchmarks.
	suite []bench.Benchmark
}

func (a *app) newBenchCmd(mode bench.Mode) *cobra.Command {
	short := "Time compilation of a WebAssembly binary"
	if mode == bench.ModeExecute {
		short = "Time compilation and execution of a WebAssembly binary under WASI"
	}

	cmd := &cobra.Command{
		Use:   string(mode) + " [path]",
		Short: short,
		Long: short + ".\n\nA directory holding <name>/" + bench.SuiteFile +
			" benchmarks runs each of them in turn.",
		Args: pathArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.settings(mode, args)
			if err != nil {
				return err
			}
			return a.runBench(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), s)
		},
	}

	fs := cmd.Flags()
	fs.Int("iterations", bench.DefaultIterations, "number of timed iterations")
	fs.String("tier", "", "compiler tier: baseline or optimizing (engine default when empty)")
	fs.String("engine", string(engine.BackendWazero), "engine: "+backendList())
	fs.Duration("timeout", 0, "per-iteration time limit, 0 for none")
	fs.String("format", formatText, "report format: text or json")
	fs.String("chart", "", "write an HTML chart of per-iteration timings to this file")
	fs.Bool("progress", false, "show a progress bar when stderr is a terminal")
	fs.Bool("interruptible", true, "let a timeout or Ctrl+C stop running guest code (off removes the checks from compiled code)")
	fs.Bool("fuel", false, "meter fuel with an unlimited budget (wasmtime only)")
	if mode == bench.ModeExecute {
		fs.String("entry", engine.DefaultEntry, "exported function to invoke")
		fs.String("guest-log", "", "file receiving guest stdout and stderr, overwritten each run")
		fs.StringSlice("dir", []string{".:/"}, "directory to preopen for the guest as host[:guest]")
	}
	return cmd
}

func backendList() string {
	names := make([]string, 0, len(engine.Backends()))
	for _, b := range engine.Backends() {
		name := string(b)
		if !engine.Available(b) {
			name += " (not built)"
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func (a *app) settings(mode bench.Mode, args []string) (settings, error) {
	v := a.v
	path, err := a.binaryPath(args)
	if err != nil {
		return settings{}, err
	}
	tier, err := engine.ParseTier(v.GetString("tier"))
	if err != nil {
		return settings{}, errors.InvalidInput("%v", err)
	}
	backend, err := engine.ParseBackend(v.GetString("engine"))
	if err != nil {
		return settings{}, errors.InvalidInput("%v", err)
	}
	format := strings.ToLower(v.GetString("format"))
	if format != formatText && format != formatJSON {
		return settings{}, errors.InvalidInput("unknown format %q (want text or json)", format)
	}

	s := settings{
		bench: bench.Config{
			BinaryPath: path,
			Mode:       mode,
			Iterations: v.GetInt("iterations"),
			Tier:       tier,
			Timeout:    v.GetDuration("timeout"),
		},
		engine: engine.Config{
			Backend:       backend,
			Tier:          tier,
			Args:          []string{filepath.Base(path)},
			Interruptible: v.GetBool("interruptible"),
			Fuel:          v.GetBool("fuel"),
		},
		format:   format,
		chart:    v.GetString("chart"),
		progress: v.GetBool("progress"),
	}
	if mode == bench.ModeExecute {
		s.bench.Entry = v.GetString("entry")
		s.guestLog = v.GetString("guest-log")
		for _, d := range v.GetStringSlice("dir") {
			m, err := engine.ParseMount(d)
			if err != nil {
				return settings{}, errors.InvalidInput("--dir: %v", err)
			}
			s.engine.Dirs = append(s.engine.Dirs, m)
		}
	}
	if err := s.bench.Validate(); err != nil {
		return settings{}, err
	}
	if s.bench.Timeout > 0 && !s.engine.Interruptible {
		return settings{}, errors.InvalidInput("--timeout needs --interruptible")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if s.suite, err = bench.FindSuite(path); err != nil {
			return settings{}, err
		}
	}
	return s, nil
}

func (a *app) runBench(ctx context.Context, out, errOut io.Writer, s settings) error {
	// Guest output never shares a writer with the report.
	guest := io.Discard
	if s.guestLog != "" {
		f, err := os.Create(s.guestLog)
		if err != nil {
			return errors.New(errors.PhaseConfig, errors.KindIO).
				Path(s.guestLog).
				Detail("create guest log").
				Cause(err).
				Build()
		}
		defer f.Close()
		guest = f
	}
	s.engine.Stdout = guest
	s.engine.Stderr = guest

	if len(s.suite) > 0 {
		return a.runSuite(ctx, out, errOut, s)
	}

	res, err := a.runOne(ctx, errOut, s)
	if err != nil {
		return err
	}

	if s.chart != "" {
		if err := writeChartFile(s.chart, func(w io.Writer) error { return bench.WriteChart(w, res) }); err != nil {
			return err
		}
	}

	switch s.format {
	case formatJSON:
		err = bench.WriteJSON(out, res)
	default:
		err = bench.WriteText(out, res)
	}
	if err != nil {
		return outputError("write report", err)
	}
	return nil
}

// runSuite benchmarks every member of s.suite with its own engine. Relative
// preopens resolve against the benchmark's directory, so each guest sees its
// own input files.
func (a *app) runSuite(ctx context.Context, out, errOut io.Writer, s settings) error {
	results := make([]*bench.Result, 0, len(s.suite))
	for _, b := range s.suite {
		one := s
		one.bench.Name = b.Name
		one.bench.BinaryPath = b.Path
		one.engine.Args = []string{bench.SuiteFile}
		one.engine.Dirs = suiteMounts(s.engine.Dirs, filepath.Dir(b.Path))

		a.log.Info("benchmark", zap.String("name", b.Name), zap.String("mode", string(s.bench.Mode)))
		res, err := a.runOne(ctx, errOut, one)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	if s.chart != "" {
		if err := writeChartFile(s.chart, func(w io.Writer) error { return bench.WriteSuiteChart(w, results) }); err != nil {
			return err
		}
	}

	var err error
	switch s.format {
	case formatJSON:
		err = bench.WriteSuiteJSON(out, results)
	default:
		err = bench.WriteSuiteText(out, results)
	}
	if err != nil {
		return outputError("write report", err)
	}
	return nil
}

func suiteMounts(mounts []engine.Mount, dir string) []engine.Mount {
	out := make([]engine.Mount, len(mounts))
	for i, m := range mounts {
		if !filepath.IsAbs(m.Host) {
			m.Host = filepath.Join(dir, m.Host)
		}
		out[i] = m
	}
	return out
}

// runOne creates the engine for s, runs the benchmark and closes the engine.
func (a *app) runOne(ctx context.Context, errOut io.Writer, s settings) (*bench.Result, error) {
	e, err := engine.New(ctx, s.engine)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := e.Close(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("close engine", zap.Error(err))
		}
	}()

	if s.progress && isTerminal(errOut) {
		return runWithProgress(ctx, errOut, e, s.bench, bench.WithLogger(a.log))
	}
	return bench.NewRunner(e, bench.WithLogger(a.log)).Run(ctx, s.bench)
}

func writeChartFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return outputError("create chart", err)
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return outputError("write chart", err)
	}
	if err := f.Close(); err != nil {
		return outputError("write chart", err)
	}
	return nil
}
