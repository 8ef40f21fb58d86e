package engine_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bench/engine"
	"github.com/wippyai/wasm-bench/errors"
	"github.com/wippyai/wasm-bench/internal/testwasm"
	"github.com/wippyai/wasm-bench/wasm"
)

func newWazero(t *testing.T, cfg engine.Config) engine.Engine {
	t.Helper()
	ctx := context.Background()
	cfg.Backend = engine.BackendWazero
	e, err := engine.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func kindOf(t *testing.T, err error) errors.Kind {
	t.Helper()
	var e *errors.Error
	require.True(t, stderrors.As(err, &e), "expected *errors.Error, got %T: %v", err, err)
	return e.Kind
}

// run compiles, instantiates and runs entry, closing everything it created.
func run(t *testing.T, e engine.Engine, data []byte, entry string) error {
	t.Helper()
	ctx := context.Background()
	mod, err := e.Compile(ctx, data)
	require.NoError(t, err)
	defer mod.Close(ctx)

	inst, err := mod.Instantiate(ctx)
	require.NoError(t, err)
	defer inst.Close(ctx)

	return inst.Run(ctx, entry)
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    engine.Tier
		wantErr bool
	}{
		{"", engine.TierDefault, false},
		{"baseline", engine.TierBaseline, false},
		{"Optimizing", engine.TierOptimizing, false},
		{" baseline ", engine.TierBaseline, false},
		{"ion", engine.TierDefault, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := engine.ParseTier(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "baseline", engine.TierBaseline.String())
	assert.Equal(t, "optimizing", engine.TierOptimizing.String())
}

func TestParseBackend(t *testing.T) {
	b, err := engine.ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, engine.BackendWazero, b)

	b, err = engine.ParseBackend("WASMTIME")
	require.NoError(t, err)
	assert.Equal(t, engine.BackendWasmtime, b)

	_, err = engine.ParseBackend("v8")
	assert.Error(t, err)

	assert.True(t, engine.Available(engine.BackendWazero))
	assert.False(t, engine.Available("v8"))
}

func TestParseMount(t *testing.T) {
	m, err := engine.ParseMount("/data")
	require.NoError(t, err)
	assert.Equal(t, engine.Mount{Host: "/data", Guest: "/data"}, m)

	m, err = engine.ParseMount("./fixtures:/in")
	require.NoError(t, err)
	assert.Equal(t, engine.Mount{Host: "./fixtures", Guest: "/in"}, m)

	_, err = engine.ParseMount("")
	assert.Error(t, err)
	_, err = engine.ParseMount(":/in")
	assert.Error(t, err)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := engine.New(context.Background(), engine.Config{Backend: "v8"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfig)
}

func TestWazero_TierNames(t *testing.T) {
	e := newWazero(t, engine.Config{Tier: engine.TierBaseline})
	assert.Equal(t, "wazero", e.Name())
	assert.Equal(t, engine.TierBaseline, e.Tier())
	assert.Equal(t, "interpreter", e.TierName())

	e = newWazero(t, engine.Config{})
	assert.Contains(t, []string{"interpreter", "compiler"}, e.TierName())
}

func TestWazero_CompileValid(t *testing.T) {
	ctx := context.Background()
	e := newWazero(t, engine.Config{})

	// Closing the module drops wazero's cached code; compiling again must work.
	for i := 0; i < 3; i++ {
		mod, err := e.Compile(ctx, testwasm.Add)
		require.NoError(t, err)
		require.NoError(t, mod.Close(ctx))
	}
}

func TestWazero_CompileErrors(t *testing.T) {
	ctx := context.Background()
	e := newWazero(t, engine.Config{})

	tests := []struct {
		name string
		data []byte
		kind errors.Kind
	}{
		{"truncated magic", testwasm.TruncatedMagic, errors.KindMalformed},
		{"bad version", testwasm.BadVersion, errors.KindMalformed},
		{"missing code", testwasm.MissingCode, errors.KindMalformed},
		{"export index out of range", testwasm.BadExportIndex, errors.KindValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := e.Compile(ctx, tt.data)
			require.Error(t, err)
			assert.Nil(t, mod)
			assert.ErrorIs(t, err, errors.ErrCompile)
			assert.Equal(t, tt.kind, kindOf(t, err))
		})
	}
}

// Every prefix of a valid binary gets the same verdict from the engine and
// the structural decoder.
func TestWazero_PrefixVerdictsMatchDecoder(t *testing.T) {
	ctx := context.Background()
	e := newWazero(t, engine.Config{Tier: engine.TierBaseline})

	for n := 0; n <= len(testwasm.Add); n++ {
		prefix := testwasm.Add[:n]
		decodeErr := wasm.Validate(prefix)
		mod, compileErr := e.Compile(ctx, prefix)
		if compileErr == nil {
			require.NoError(t, mod.Close(ctx))
		}
		assert.Equal(t, decodeErr == nil, compileErr == nil,
			"prefix %d: decoder=%v engine=%v", n, decodeErr, compileErr)
	}
}

func TestWazero_RunHelloCapturesGuestOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	e := newWazero(t, engine.Config{Stdout: &stdout, Stderr: &stderr})

	require.NoError(t, run(t, e, testwasm.Hello, engine.DefaultEntry))
	assert.Equal(t, testwasm.GuestOutput, stdout.String())
	assert.Empty(t, stderr.String())
}

func TestWazero_RunOutcomes(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		entry string
		kind  errors.Kind // empty for success
	}{
		{"empty start", testwasm.Empty, "_start", ""},
		{"bench hooks", testwasm.BenchHooks, "_start", ""},
		{"exit zero", testwasm.ExitZero, "_start", ""},
		{"exit three", testwasm.ExitCode, "_start", errors.KindExit},
		{"trap", testwasm.Trap, "_start", errors.KindTrap},
		{"missing entry", testwasm.Add, "_start", errors.KindMissingEntry},
	}
	e := newWazero(t, engine.Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(t, e, tt.data, tt.entry)
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, kindOf(t, err))
		})
	}
}

func TestWazero_ExitStatusInMessage(t *testing.T) {
	e := newWazero(t, engine.Config{})
	err := run(t, e, testwasm.ExitCode, "_start")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrExecution)
	assert.Contains(t, err.Error(), "status 3")
}

func TestWazero_Timeout(t *testing.T) {
	ctx := context.Background()
	e := newWazero(t, engine.Config{Interruptible: true})

	mod, err := e.Compile(ctx, testwasm.Loop)
	require.NoError(t, err)
	defer mod.Close(ctx)
	inst, err := mod.Instantiate(ctx)
	require.NoError(t, err)
	defer inst.Close(ctx)

	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = inst.Run(runCtx, "_start")
	require.Error(t, err)
	assert.Equal(t, errors.KindTimeout, kindOf(t, err))
}

func TestWazero_InstantiateMissingImport(t *testing.T) {
	ctx := context.Background()
	e := newWazero(t, engine.Config{})

	mod, err := e.Compile(ctx, testwasm.MissingImport)
	require.NoError(t, err)
	defer mod.Close(ctx)

	inst, err := mod.Instantiate(ctx)
	require.Error(t, err)
	assert.Nil(t, inst)
	assert.ErrorIs(t, err, errors.ErrLink)
}

func TestWazero_CanceledWhileRunning(t *testing.T) {
	ctx := context.Background()
	e := newWazero(t, engine.Config{Interruptible: true})

	mod, err := e.Compile(ctx, testwasm.Loop)
	require.NoError(t, err)
	defer mod.Close(ctx)
	inst, err := mod.Instantiate(ctx)
	require.NoError(t, err)
	defer inst.Close(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	time.AfterFunc(50*time.Millisecond, cancel)
	err = inst.Run(runCtx, "_start")
	require.Error(t, err)
	assert.Equal(t, errors.KindCanceled, kindOf(t, err))
	assert.ErrorIs(t, err, errors.ErrExecution)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWazero_StartFunctionTrap(t *testing.T) {
	ctx := context.Background()
	e := newWazero(t, engine.Config{})

	mod, err := e.Compile(ctx, testwasm.StartTrap)
	require.NoError(t, err)
	defer mod.Close(ctx)

	inst, err := mod.Instantiate(ctx)
	require.Error(t, err)
	assert.Nil(t, inst)
	assert.ErrorIs(t, err, errors.ErrExecution)
	assert.Equal(t, errors.KindTrap, kindOf(t, err))
}

func TestNew_FuelNeedsWasmtime(t *testing.T) {
	_, err := engine.New(context.Background(), engine.Config{Backend: engine.BackendWazero, Fuel: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfig)
	assert.Equal(t, errors.KindUnsupported, kindOf(t, err))
	assert.Contains(t, err.Error(), "fuel")
}

func TestWazero_IsNotPrecompiler(t *testing.T) {
	_, ok := newWazero(t, engine.Config{}).(engine.Precompiler)
	assert.False(t, ok)
}
