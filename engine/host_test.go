package engine_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bench/engine"
	"github.com/wippyai/wasm-bench/errors"
	"github.com/wippyai/wasm-bench/internal/testwasm"
	"github.com/wippyai/wasm-bench/wasm"
)

func TestHostFunctions(t *testing.T) {
	host, err := engine.HostFunctions()
	require.NoError(t, err)

	fdWrite, ok := host[engine.WASIModule]["fd_write"]
	require.True(t, ok)
	assert.Equal(t, "(i32, i32, i32, i32) -> (i32)", fdWrite.String())

	procExit, ok := host[engine.WASIModule]["proc_exit"]
	require.True(t, ok)
	assert.Equal(t, "(i32) -> ()", procExit.String())

	for _, name := range []string{"start", "end"} {
		sig, ok := host[engine.BenchModule][name]
		require.True(t, ok, name)
		assert.Equal(t, "() -> ()", sig.String())
	}
}

func parse(t *testing.T, data []byte) *wasm.Module {
	t.Helper()
	m, err := wasm.Parse(data)
	require.NoError(t, err)
	return m
}

func TestCheckImports_Satisfied(t *testing.T) {
	for name, data := range map[string][]byte{
		"no imports":  testwasm.Add,
		"wasi":        testwasm.Hello,
		"proc_exit":   testwasm.ExitCode,
		"bench hooks": testwasm.BenchHooks,
	} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, engine.CheckImports(parse(t, data)))
		})
	}
}

func TestCheckImports_Missing(t *testing.T) {
	err := engine.CheckImports(parse(t, testwasm.MissingImport))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLink)

	var missing *errors.MissingImportsError
	require.True(t, stderrors.As(err, &missing))
	require.Len(t, missing.Imports, 1)
	assert.Equal(t, errors.MissingImport{Module: "env", Name: "missing"}, missing.Imports[0])
	assert.Equal(t, errors.KindMissingImport, missing.Kind())
	assert.Contains(t, err.Error(), "env")
}

func TestCheckImports_SignatureMismatch(t *testing.T) {
	err := engine.CheckImports(parse(t, testwasm.MismatchedImport))
	require.Error(t, err)

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.PhaseLinking, e.Phase)
	assert.Equal(t, errors.KindSignatureMismatch, e.Kind)

	var missing *errors.MissingImportsError
	require.True(t, stderrors.As(err, &missing))
	require.Len(t, missing.Imports, 1)
	assert.Equal(t, "proc_exit", missing.Imports[0].Name)
	assert.Contains(t, missing.Imports[0].Reason, "(i32) -> ()")
}

func TestResolveImport(t *testing.T) {
	m := parse(t, testwasm.Hello)
	require.NotEmpty(t, m.Imports)
	_, ok := engine.ResolveImport(m, m.Imports[0])
	assert.True(t, ok)

	m = parse(t, testwasm.MismatchedImport)
	unresolved, ok := engine.ResolveImport(m, m.Imports[0])
	assert.False(t, ok)
	assert.Equal(t, engine.WASIModule, unresolved.Module)
	assert.NotEmpty(t, unresolved.Reason)
}
