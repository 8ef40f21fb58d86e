package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wippyai/wasm-bench/errors"
	"github.com/wippyai/wasm-bench/wasm"
)

// Host import modules available to every guest.
const (
	WASIModule  = "wasi_snapshot_preview1"
	BenchModule = "bench"
)

// benchHooks are the no-op sightglass markers bracketing the measured region
// of a guest. Each has type () -> ().
var benchHooks = []string{"start", "end"}

var (
	hostOnce  sync.Once
	hostFuncs map[string]map[string]wasm.FuncType
	hostErr   error
)

// HostFunctions returns the signature of every host function a guest may
// import, keyed by module then name. WASI signatures are read from wazero's
// preview1 implementation so every engine is held to the same import set.
func HostFunctions() (map[string]map[string]wasm.FuncType, error) {
	hostOnce.Do(func() {
		hostFuncs, hostErr = loadHostFunctions(context.Background())
	})
	return hostFuncs, hostErr
}

func loadHostFunctions(ctx context.Context) (map[string]map[string]wasm.FuncType, error) {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	builder := r.NewHostModuleBuilder(WASIModule)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	compiled, err := builder.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile WASI host module: %w", err)
	}
	defer compiled.Close(ctx)

	wasi := make(map[string]wasm.FuncType, len(compiled.ExportedFunctions()))
	for name, def := range compiled.ExportedFunctions() {
		wasi[name] = funcTypeOf(def)
	}

	bench := make(map[string]wasm.FuncType, len(benchHooks))
	for _, name := range benchHooks {
		bench[name] = wasm.FuncType{}
	}

	return map[string]map[string]wasm.FuncType{
		WASIModule:  wasi,
		BenchModule: bench,
	}, nil
}

// wazero value types share the binary encoding.
func funcTypeOf(def api.FunctionDefinition) wasm.FuncType {
	var ft wasm.FuncType
	for _, p := range def.ParamTypes() {
		ft.Params = append(ft.Params, wasm.ValType(p))
	}
	for _, r := range def.ResultTypes() {
		ft.Results = append(ft.Results, wasm.ValType(r))
	}
	return ft
}

// ResolveImport checks one import of m against the host import set. It
// returns the unresolved entry and false when the host does not satisfy imp.
func ResolveImport(m *wasm.Module, imp wasm.Import) (errors.MissingImport, bool) {
	unresolved := errors.MissingImport{Module: imp.Module, Name: imp.Name}
	host, err := HostFunctions()
	if err != nil {
		unresolved.Reason = err.Error()
		return unresolved, false
	}

	sig, provided := host[imp.Module][imp.Name]
	switch {
	case !provided:
		return unresolved, false
	case imp.Kind != wasm.KindFunc:
		unresolved.Reason = fmt.Sprintf("imported as %s, host provides a function", wasm.KindName(imp.Kind))
		return unresolved, false
	case m.TypesIncomplete || int(imp.TypeIdx) >= len(m.Types):
		// signature unknown to the decoder, left to the engine
		return errors.MissingImport{}, true
	case !m.Types[imp.TypeIdx].Equal(sig):
		unresolved.Reason = fmt.Sprintf("imported as %s, host provides %s", m.Types[imp.TypeIdx], sig)
		return unresolved, false
	}
	return errors.MissingImport{}, true
}

// CheckImports reports every import of m the host does not satisfy, grouped in
// a linking-phase error. Names the host lacks are missing; functions whose
// declared type differs from the host's are mismatches.
func CheckImports(m *wasm.Module) error {
	if _, err := HostFunctions(); err != nil {
		return errors.Instantiation(err)
	}

	var missing []errors.MissingImport
	for _, imp := range m.Imports {
		if unresolved, ok := ResolveImport(m, imp); !ok {
			missing = append(missing, unresolved)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return errors.Link(&errors.MissingImportsError{Imports: missing})
}
