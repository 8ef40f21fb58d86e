//go:build wasmer && cgo && !windows

package engine

import (
	"context"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/wippyai/wasm-bench/errors"
)

const wasmerAvailable = true

type wasmerEngine struct {
	engine   *wasmer.Engine
	store    *wasmer.Store
	cfg      Config
	tierName string
}

func newWasmerEngine(cfg Config) (Engine, error) {
	wc := wasmer.NewConfig()
	tierName := "cranelift"
	if cfg.Tier == TierBaseline {
		if !wasmer.IsCompilerAvailable(wasmer.SINGLEPASS) {
			return nil, errors.Unsupported(errors.PhaseConfig, "wasmer singlepass compiler is not available in this build")
		}
		wc.UseSinglepassCompiler()
		tierName = "singlepass"
	} else {
		wc.UseCraneliftCompiler()
	}

	engine := wasmer.NewEngineWithConfig(wc)
	return &wasmerEngine{
		engine:   engine,
		store:    wasmer.NewStore(engine),
		cfg:      cfg,
		tierName: tierName,
	}, nil
}

func (e *wasmerEngine) Name() string     { return string(BackendWasmer) }
func (e *wasmerEngine) Tier() Tier       { return e.cfg.Tier }
func (e *wasmerEngine) TierName() string { return e.tierName }

func (e *wasmerEngine) Compile(_ context.Context, bytes []byte) (Module, error) {
	m, err := wasmer.NewModule(e.store, bytes)
	if err != nil {
		return nil, compileError(bytes, err)
	}
	return &wasmerModule{engine: e, module: m, bytes: bytes}, nil
}

// Precompile returns wasmer's serialized artifact for bytes.
func (e *wasmerEngine) Precompile(_ context.Context, bytes []byte) ([]byte, error) {
	m, err := wasmer.NewModule(e.store, bytes)
	if err != nil {
		return nil, compileError(bytes, err)
	}
	defer m.Close()
	artifact, err := m.Serialize()
	if err != nil {
		return nil, errors.Compile(errors.KindValidationFailed, fmt.Errorf("serialize: %w", err))
	}
	return artifact, nil
}

func (e *wasmerEngine) Close(context.Context) error {
	e.store.Close()
	return nil
}

type wasmerModule struct {
	engine *wasmerEngine
	module *wasmer.Module
	bytes  []byte
}

// Instantiate wires WASI only when the module imports it; wasmer refuses to
// build a WASI import object for modules without a WASI version.
func (m *wasmerModule) Instantiate(context.Context) (Instance, error) {
	cfg := m.engine.cfg
	store := m.engine.store

	wi := &wasmerInstance{cfg: cfg}
	var imports *wasmer.ImportObject
	if wasmer.GetWasiVersion(m.module) != wasmer.WASI_VERSION_INVALID {
		args := cfg.args()
		builder := wasmer.NewWasiStateBuilder(args[0])
		for _, arg := range args[1:] {
			builder = builder.Argument(arg)
		}
		for _, d := range cfg.Dirs {
			builder = builder.MapDirectory(d.Guest, d.Host)
		}
		env, err := builder.CaptureStdout().CaptureStderr().Finalize()
		if err != nil {
			return nil, errors.Instantiation(err)
		}
		if imports, err = env.GenerateImportObject(store, m.module); err != nil {
			return nil, errors.Instantiation(err)
		}
		wi.wasi = env
	} else {
		imports = wasmer.NewImportObject()
	}

	hookType := wasmer.NewFunctionType(wasmer.NewValueTypes(), wasmer.NewValueTypes())
	hooks := make(map[string]wasmer.IntoExtern, len(benchHooks))
	for _, name := range benchHooks {
		hooks[name] = wasmer.NewFunction(store, hookType, func([]wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{}, nil
		})
	}
	imports.Register(BenchModule, hooks)

	instance, err := wasmer.NewInstance(m.module, imports)
	if err != nil {
		if startFailed(m.bytes) {
			if runErr := wasmerRunError(startEntry, err); runErr != nil {
				return nil, runErr
			}
		}
		return nil, errors.Instantiation(err)
	}
	wi.instance = instance
	return wi, nil
}

func (m *wasmerModule) Close(context.Context) error {
	m.module.Close()
	return nil
}

type wasmerInstance struct {
	cfg      Config
	instance *wasmer.Instance
	wasi     *wasmer.WasiEnvironment
}

// Run calls entry on a separate goroutine so a context deadline can abandon
// it. wasmer cannot interrupt guest code, so a timed-out call keeps running
// until the process exits; the run is aborted either way.
func (i *wasmerInstance) Run(ctx context.Context, entry string) error {
	var (
		fn  wasmer.NativeFunction
		err error
	)
	if entry == DefaultEntry && i.wasi != nil {
		fn, err = i.instance.Exports.GetWasiStartFunction()
	} else {
		fn, err = i.instance.Exports.GetFunction(entry)
	}
	if err != nil || fn == nil {
		return errors.MissingEntry(entry)
	}

	done := make(chan error, 1)
	go func() {
		_, callErr := fn()
		done <- callErr
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		return interrupted(ctx, ctx.Err())
	}

	if i.wasi != nil {
		_, _ = i.cfg.stdout().Write(i.wasi.ReadStdout())
		_, _ = i.cfg.stderr().Write(i.wasi.ReadStderr())
	}
	return wasmerRunError(entry, err)
}

func wasmerRunError(entry string, err error) error {
	if err == nil {
		return nil
	}
	if code, ok := wasmerExitCode(err); ok {
		if code == 0 {
			return nil
		}
		return errors.Exit(entry, code)
	}
	return errors.Trap(entry, err)
}

func (i *wasmerInstance) Close(context.Context) error {
	i.instance.Close()
	return nil
}
