package bench_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bench/bench"
	"github.com/wippyai/wasm-bench/engine"
	"github.com/wippyai/wasm-bench/errors"
	"github.com/wippyai/wasm-bench/internal/testwasm"
)

func newEngine(t *testing.T, cfg engine.Config) engine.Engine {
	t.Helper()
	ctx := context.Background()
	e, err := engine.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func asError(t *testing.T, err error) *errors.Error {
	t.Helper()
	var e *errors.Error
	require.True(t, stderrors.As(err, &e), "expected *errors.Error, got %T: %v", err, err)
	return e
}

func TestConfig_Validate(t *testing.T) {
	valid := bench.Config{BinaryPath: "x.wasm", Mode: bench.ModeCompile, Iterations: 1}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*bench.Config)
	}{
		{"no path", func(c *bench.Config) { c.BinaryPath = "" }},
		{"no mode", func(c *bench.Config) { c.Mode = "" }},
		{"zero iterations", func(c *bench.Config) { c.Iterations = 0 }},
		{"negative iterations", func(c *bench.Config) { c.Iterations = -3 }},
		{"negative timeout", func(c *bench.Config) { c.Timeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrConfig)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := bench.ParseMode("Execute")
	require.NoError(t, err)
	assert.Equal(t, bench.ModeExecute, m)

	_, err = bench.ParseMode("run")
	assert.Error(t, err)
}

func TestLoadBytecode(t *testing.T) {
	path := testwasm.WriteFile(t, "add.wasm", testwasm.Add)
	data, err := bench.LoadBytecode(path)
	require.NoError(t, err)
	assert.Equal(t, testwasm.Add, data)

	_, err = bench.LoadBytecode(filepath.Join(t.TempDir(), "missing.wasm"))
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, asError(t, err).Kind)

	_, err = bench.LoadBytecode(t.TempDir())
	require.Error(t, err)
	e := asError(t, err)
	assert.Equal(t, errors.PhaseLoad, e.Phase)
	assert.Equal(t, errors.KindIO, e.Kind)
}

func TestLoadBytecode_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	path := testwasm.WriteFile(t, "locked.wasm", testwasm.Add)
	require.NoError(t, os.Chmod(path, 0o000))

	_, err := bench.LoadBytecode(path)
	require.Error(t, err)
	assert.Equal(t, errors.KindPermissionDenied, asError(t, err).Kind)
}

func TestRun_CompileProducesOneSamplePerIteration(t *testing.T) {
	path := testwasm.WriteFile(t, "add.wasm", testwasm.Add)
	var observed []bench.Sample
	r := bench.NewRunner(newEngine(t, engine.Config{}), bench.WithObserver(func(s bench.Sample) {
		observed = append(observed, s)
	}))

	res, err := r.Run(context.Background(), bench.Config{
		BinaryPath: path,
		Mode:       bench.ModeCompile,
		Iterations: 5,
	})
	require.NoError(t, err)

	require.Len(t, res.Samples, 5)
	assert.Equal(t, res.Samples, observed)
	assert.Equal(t, 5, res.Iterations)
	assert.Equal(t, len(testwasm.Add), res.Size)
	assert.Equal(t, "wazero", res.Engine)
	assert.Nil(t, res.Execute)
	assert.Nil(t, res.Instantiate)

	var sum float64
	for i, s := range res.Samples {
		assert.Equal(t, i+1, s.Iteration)
		assert.GreaterOrEqual(t, s.Compile, time.Duration(0))
		assert.Zero(t, s.Execute)
		sum += bench.Millis(s.Compile)
	}
	assert.InDelta(t, sum/5, res.Compile.Mean, 1e-9)
	assert.Greater(t, res.Compile.Mean, 0.0)
	assert.LessOrEqual(t, res.Compile.Min, res.Compile.Mean)
	assert.GreaterOrEqual(t, res.Compile.Max, res.Compile.Mean)
}

func TestRun_ExecuteKeepsGuestOutputOutOfReport(t *testing.T) {
	var guest bytes.Buffer
	e := newEngine(t, engine.Config{Stdout: &guest, Stderr: &guest})
	path := testwasm.WriteFile(t, "hello.wasm", testwasm.Hello)

	res, err := bench.NewRunner(e).Run(context.Background(), bench.Config{
		BinaryPath: path,
		Mode:       bench.ModeExecute,
		Iterations: 3,
	})
	require.NoError(t, err)
	require.Len(t, res.Samples, 3)
	require.NotNil(t, res.Execute)
	require.NotNil(t, res.Instantiate)

	// preflight does not run the entry point
	assert.Equal(t, 3, bytes.Count(guest.Bytes(), []byte(testwasm.GuestOutput)))

	var report bytes.Buffer
	require.NoError(t, bench.WriteText(&report, res))
	assert.NotContains(t, report.String(), "hello")
	assert.Contains(t, report.String(), "Execution took: ")
}

func TestRun_TruncatedMagicFailsWithoutSamples(t *testing.T) {
	path := testwasm.WriteFile(t, "bad.wasm", testwasm.TruncatedMagic)
	var observed int
	r := bench.NewRunner(newEngine(t, engine.Config{}), bench.WithObserver(func(bench.Sample) { observed++ }))

	res, err := r.Run(context.Background(), bench.Config{
		BinaryPath: path,
		Mode:       bench.ModeCompile,
		Iterations: 1,
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Zero(t, observed)

	e := asError(t, err)
	assert.Equal(t, errors.PhaseCompile, e.Phase)
	assert.Equal(t, errors.KindMalformed, e.Kind)
	assert.Equal(t, 1, e.Iteration)
}

func TestRun_UnresolvedImportFailsBeforeAnySample(t *testing.T) {
	path := testwasm.WriteFile(t, "missing.wasm", testwasm.MissingImport)
	var observed int
	r := bench.NewRunner(newEngine(t, engine.Config{}), bench.WithObserver(func(bench.Sample) { observed++ }))

	_, err := r.Run(context.Background(), bench.Config{
		BinaryPath: path,
		Mode:       bench.ModeExecute,
		Iterations: 10,
	})
	require.Error(t, err)
	assert.Zero(t, observed)
	assert.ErrorIs(t, err, errors.ErrLink)

	var missing *errors.MissingImportsError
	require.True(t, stderrors.As(err, &missing))
	assert.Equal(t, "missing", missing.Imports[0].Name)
}

func TestRun_MissingEntryFailsBeforeAnySample(t *testing.T) {
	path := testwasm.WriteFile(t, "add.wasm", testwasm.Add)
	_, err := bench.NewRunner(newEngine(t, engine.Config{})).Run(context.Background(), bench.Config{
		BinaryPath: path,
		Mode:       bench.ModeExecute,
		Iterations: 3,
	})
	require.Error(t, err)
	e := asError(t, err)
	assert.Equal(t, errors.KindMissingEntry, e.Kind)
	assert.Zero(t, e.Iteration)
}

func TestRun_CustomEntry(t *testing.T) {
	path := testwasm.WriteFile(t, "add.wasm", testwasm.Add)
	_, err := bench.NewRunner(newEngine(t, engine.Config{})).Run(context.Background(), bench.Config{
		BinaryPath: path,
		Mode:       bench.ModeExecute,
		Iterations: 1,
		Entry:      "add",
	})
	// add takes two parameters and the runner passes none
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrExecution)
}

func TestRun_ExecutionErrorsCarryIteration(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		kind errors.Kind
	}{
		{"trap", testwasm.Trap, errors.KindTrap},
		{"non-zero exit", testwasm.ExitCode, errors.KindExit},
		{"start function trap", testwasm.StartTrap, errors.KindTrap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testwasm.WriteFile(t, "guest.wasm", tt.data)
			res, err := bench.NewRunner(newEngine(t, engine.Config{})).Run(context.Background(), bench.Config{
				BinaryPath: path,
				Mode:       bench.ModeExecute,
				Iterations: 4,
			})
			require.Error(t, err)
			assert.Nil(t, res)
			e := asError(t, err)
			assert.Equal(t, errors.PhaseExecute, e.Phase)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, 1, e.Iteration)
		})
	}
}

func TestRun_Timeout(t *testing.T) {
	path := testwasm.WriteFile(t, "loop.wasm", testwasm.Loop)
	_, err := bench.NewRunner(newEngine(t, engine.Config{Interruptible: true})).Run(context.Background(), bench.Config{
		BinaryPath: path,
		Mode:       bench.ModeExecute,
		Iterations: 2,
		Timeout:    50 * time.Millisecond,
	})
	require.Error(t, err)
	e := asError(t, err)
	assert.Equal(t, errors.KindTimeout, e.Kind)
	assert.Equal(t, 1, e.Iteration)
}

func TestRun_InvalidConfigTouchesNothing(t *testing.T) {
	_, err := bench.NewRunner(newEngine(t, engine.Config{})).Run(context.Background(), bench.Config{
		BinaryPath: filepath.Join(t.TempDir(), "missing.wasm"),
		Mode:       bench.ModeCompile,
		Iterations: 0,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfig)
}

func TestRun_Canceled(t *testing.T) {
	path := testwasm.WriteFile(t, "add.wasm", testwasm.Add)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bench.NewRunner(newEngine(t, engine.Config{})).Run(ctx, bench.Config{
		BinaryPath: path,
		Mode:       bench.ModeCompile,
		Iterations: 3,
	})
	require.Error(t, err)
	e := asError(t, err)
	assert.Equal(t, errors.KindCanceled, e.Kind)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_CanceledWhileGuestRuns(t *testing.T) {
	path := testwasm.WriteFile(t, "loop.wasm", testwasm.Loop)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := bench.NewRunner(newEngine(t, engine.Config{Interruptible: true})).Run(ctx, bench.Config{
		BinaryPath: path,
		Mode:       bench.ModeExecute,
		Iterations: 2,
	})
	require.Error(t, err)
	e := asError(t, err)
	assert.Equal(t, errors.PhaseExecute, e.Phase)
	assert.Equal(t, errors.KindCanceled, e.Kind)
	assert.Equal(t, 1, e.Iteration)
	assert.ErrorIs(t, err, context.Canceled)
}

// precompilingEngine reports a fixed artifact for any binary.
type precompilingEngine struct {
	engine.Engine
	artifact []byte
}

func (p precompilingEngine) Precompile(context.Context, []byte) ([]byte, error) {
	return p.artifact, nil
}

func TestRun_ReportsCodeSize(t *testing.T) {
	path := testwasm.WriteFile(t, "add.wasm", testwasm.Add)
	e := precompilingEngine{Engine: newEngine(t, engine.Config{}), artifact: make([]byte, 42)}

	res, err := bench.NewRunner(e).Run(context.Background(), bench.Config{
		BinaryPath: path,
		Mode:       bench.ModeCompile,
		Iterations: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res.CodeSize)

	var report bytes.Buffer
	require.NoError(t, bench.WriteText(&report, res))
	assert.Contains(t, report.String(), "Code length: 42 bytes\n")

	// engines without serialization report nothing
	res, err = bench.NewRunner(newEngine(t, engine.Config{})).Run(context.Background(), bench.Config{
		BinaryPath: path,
		Mode:       bench.ModeCompile,
		Iterations: 1,
	})
	require.NoError(t, err)
	assert.Zero(t, res.CodeSize)
}

func TestRunIteration_ModulesAreReleased(t *testing.T) {
	r := bench.NewRunner(newEngine(t, engine.Config{}))
	cfg := bench.Config{BinaryPath: "unused", Mode: bench.ModeExecute, Iterations: 1}
	for i := 1; i <= 3; i++ {
		s, err := r.RunIteration(context.Background(), cfg, testwasm.BenchHooks, i)
		require.NoError(t, err)
		assert.Equal(t, i, s.Iteration)
		assert.Greater(t, s.Compile, time.Duration(0))
	}
}
