//go:build wasmtime && cgo

package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"

	"github.com/bytecodealliance/wasmtime-go/v9"

	"github.com/wippyai/wasm-bench/errors"
)

const wasmtimeAvailable = true

type wasmtimeEngine struct {
	engine   *wasmtime.Engine
	cfg      Config
	tierName string
}

func newWasmtimeEngine(cfg Config) (Engine, error) {
	wc := wasmtime.NewConfig()
	tierName := "cranelift (speed)"
	if cfg.Tier == TierBaseline {
		wc.SetCraneliftOptLevel(wasmtime.OptLevelNone)
		tierName = "cranelift (none)"
	} else {
		wc.SetCraneliftOptLevel(wasmtime.OptLevelSpeed)
	}
	// Every store gets a deadline of one epoch; the engine epoch only
	// advances when a run is interrupted.
	wc.SetEpochInterruption(cfg.Interruptible)
	wc.SetConsumeFuel(cfg.Fuel)

	return &wasmtimeEngine{
		engine:   wasmtime.NewEngineWithConfig(wc),
		cfg:      cfg,
		tierName: tierName,
	}, nil
}

func (e *wasmtimeEngine) Name() string     { return string(BackendWasmtime) }
func (e *wasmtimeEngine) Tier() Tier       { return e.cfg.Tier }
func (e *wasmtimeEngine) TierName() string { return e.tierName }

func (e *wasmtimeEngine) Compile(_ context.Context, bytes []byte) (Module, error) {
	m, err := wasmtime.NewModule(e.engine, bytes)
	if err != nil {
		return nil, compileError(bytes, err)
	}
	return &wasmtimeModule{engine: e, module: m, bytes: bytes}, nil
}

// Precompile returns the serialized machine code wasmtime would load
// without compiling.
func (e *wasmtimeEngine) Precompile(_ context.Context, bytes []byte) ([]byte, error) {
	m, err := wasmtime.NewModule(e.engine, bytes)
	if err != nil {
		return nil, compileError(bytes, err)
	}
	artifact, err := m.Serialize()
	if err != nil {
		return nil, errors.Compile(errors.KindValidationFailed, fmt.Errorf("serialize: %w", err))
	}
	return artifact, nil
}

// Close is a no-op; wasmtime objects are freed by finalizers.
func (e *wasmtimeEngine) Close(context.Context) error {
	return nil
}

type wasmtimeModule struct {
	engine *wasmtimeEngine
	module *wasmtime.Module
	bytes  []byte
}

// Instantiate creates a fresh store and linker per instance. wasmtime writes
// guest stdio to files, so output is staged in temp files and copied to the
// configured writers after each run.
func (m *wasmtimeModule) Instantiate(ctx context.Context) (inst Instance, err error) {
	cfg := m.engine.cfg
	wi := &wasmtimeInstance{cfg: cfg, engine: m.engine.engine}
	defer func() {
		if err != nil {
			_ = wi.Close(context.Background())
		}
	}()

	wasi := wasmtime.NewWasiConfig()
	wasi.SetArgv(cfg.args())
	if wi.stdout, err = stagingFile("stdout"); err != nil {
		return nil, errors.Instantiation(err)
	}
	if wi.stderr, err = stagingFile("stderr"); err != nil {
		return nil, errors.Instantiation(err)
	}
	if err = wasi.SetStdoutFile(wi.stdout); err != nil {
		return nil, errors.Instantiation(err)
	}
	if err = wasi.SetStderrFile(wi.stderr); err != nil {
		return nil, errors.Instantiation(err)
	}
	for _, d := range cfg.Dirs {
		if err = wasi.PreopenDir(d.Host, d.Guest); err != nil {
			return nil, errors.Instantiation(fmt.Errorf("preopen %s: %w", d.Host, err))
		}
	}

	wi.store = wasmtime.NewStore(m.engine.engine)
	wi.store.SetWasi(wasi)
	if cfg.Interruptible {
		wi.store.SetEpochDeadline(1)
	}
	if cfg.Fuel {
		if err = wi.store.AddFuel(math.MaxUint64); err != nil {
			return nil, errors.Instantiation(fmt.Errorf("add fuel: %w", err))
		}
	}

	wi.linker = wasmtime.NewLinker(m.engine.engine)
	if err = wi.linker.DefineWasi(); err != nil {
		return nil, errors.Instantiation(err)
	}
	for _, name := range benchHooks {
		if err = wi.linker.FuncWrap(BenchModule, name, func() {}); err != nil {
			return nil, errors.Instantiation(err)
		}
	}

	if wi.instance, err = wi.linker.Instantiate(wi.store, m.module); err != nil {
		if startFailed(m.bytes) {
			if runErr := wasmtimeRunError(ctx, startEntry, err, false); runErr != nil {
				return nil, runErr
			}
		}
		return nil, errors.Instantiation(err)
	}
	return wi, nil
}

// Close is a no-op; the module is freed by its finalizer.
func (m *wasmtimeModule) Close(context.Context) error {
	return nil
}

type wasmtimeInstance struct {
	cfg      Config
	engine   *wasmtime.Engine
	store    *wasmtime.Store
	linker   *wasmtime.Linker
	instance *wasmtime.Instance
	stdout   string
	stderr   string
}

func (i *wasmtimeInstance) Run(ctx context.Context, entry string) error {
	fn := i.instance.GetFunc(i.store, entry)
	if fn == nil {
		return errors.MissingEntry(entry)
	}

	var stopped atomic.Bool
	if i.cfg.Interruptible {
		stop := context.AfterFunc(ctx, func() {
			stopped.Store(true)
			i.engine.IncrementEpoch()
		})
		defer stop()
	}

	_, err := fn.Call(i.store)
	if flushErr := i.flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	return wasmtimeRunError(ctx, entry, err, stopped.Load())
}

func wasmtimeRunError(ctx context.Context, entry string, err error, stopped bool) error {
	if err == nil {
		return nil
	}
	var exit *wasmtime.Error
	if stderrors.As(err, &exit) {
		if code, ok := exit.ExitStatus(); ok {
			if code == 0 {
				return nil
			}
			return errors.Exit(entry, uint32(code))
		}
	}
	if stopped || ctx.Err() != nil {
		return interrupted(ctx, err)
	}
	return errors.Trap(entry, err)
}

// flush copies staged guest output to the configured writers.
func (i *wasmtimeInstance) flush() error {
	if err := drain(i.stdout, i.cfg.stdout()); err != nil {
		return err
	}
	return drain(i.stderr, i.cfg.stderr())
}

// Close removes the staging files. The store and linker are freed by their
// finalizers.
func (i *wasmtimeInstance) Close(context.Context) error {
	for _, path := range []string{i.stdout, i.stderr} {
		if path != "" {
			_ = os.Remove(path)
		}
	}
	return nil
}

func stagingFile(stream string) (string, error) {
	f, err := os.CreateTemp("", "benchrunner-"+stream+"-*")
	if err != nil {
		return "", err
	}
	return f.Name(), f.Close()
}

func drain(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
