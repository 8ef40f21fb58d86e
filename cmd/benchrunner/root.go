package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bench/bench"
	"github.com/wippyai/wasm-bench/engine"
	"github.com/wippyai/wasm-bench/errors"
)

const envPrefix = "BENCHRUNNER"

// pathEnv names the binary when no path argument is given.
const pathEnv = "WASM_PATH"

// app is the state shared by the commands of one invocation.
type app struct {
	v   *viper.Viper
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "benchrunner",
		Short: "Time WebAssembly compilation and execution",
		Long: titleStyle.Render("benchrunner") + helpStyle.Render(" - WebAssembly compile/execute benchmarks") + `

benchrunner loads a WebAssembly binary, compiles it (and in execute mode
instantiates it under WASI and runs its entry point) a fixed number of
times, and reports the mean time of each phase.

` + helpStyle.Render("Examples:") + `
  benchrunner compile app.wasm --iterations 30
  benchrunner execute app.wasm --tier optimizing --guest-log guest.log
  WASM_PATH=app.wasm benchrunner execute --format json
  benchrunner inspect app.wasm`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.InvalidInput("%v", err)
	})

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (YAML, TOML or JSON)")
	pf.String("log-level", "warn", "log level on stderr: debug, info, warn, error")

	root.AddCommand(
		a.newBenchCmd(bench.ModeCompile),
		a.newBenchCmd(bench.ModeExecute),
		a.newInspectCmd(),
	)
	return root
}

// loadConfig layers flags over BENCHRUNNER_ variables over the config file.
func (a *app) loadConfig(cmd *cobra.Command) error {
	v := a.v
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("path", pathEnv); err != nil {
		return errors.InvalidInput("bind %s: %v", pathEnv, err)
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return errors.InvalidInput("bind flags: %v", err)
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(errors.PhaseConfig, errors.KindIO).
				Path(file).
				Detail("read config file").
				Cause(err).
				Build()
		}
	}

	log, err := newLogger(cmd.ErrOrStderr(), v.GetString("log-level"))
	if err != nil {
		return err
	}
	a.log = log
	engine.SetLogger(log)
	return nil
}

// binaryPath returns the path argument, falling back to WASM_PATH or the
// config file.
func (a *app) binaryPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if p := a.v.GetString("path"); p != "" {
		return p, nil
	}
	return "", errors.InvalidInput("no binary given: pass a path or set %s", pathEnv)
}

func pathArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return errors.InvalidInput("%s takes at most one path, got %d", cmd.Name(), len(args))
	}
	return nil
}

func newLogger(w io.Writer, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.InvalidInput("log level: %v", err)
	}
	enc := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core).Named("benchrunner"), nil
}
