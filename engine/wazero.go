package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bench/errors"
)

// WazeroEngine implements Engine using wazero runtime
type WazeroEngine struct {
	runtime  wazero.Runtime
	cfg      Config
	tierName string
}

// NewWazeroEngine creates a wazero runtime with WASI preview1 and the bench
// hooks instantiated. TierBaseline selects the interpreter and TierOptimizing
// the compiler; TierDefault lets wazero pick for the platform.
func NewWazeroEngine(ctx context.Context, cfg Config) (*WazeroEngine, error) {
	var runtimeCfg wazero.RuntimeConfig
	tierName := "compiler"

	switch cfg.Tier {
	case TierBaseline:
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
		tierName = "interpreter"
	case TierOptimizing:
		if !compilerSupported() {
			return nil, errors.Unsupported(errors.PhaseConfig,
				fmt.Sprintf("wazero compiler on %s/%s", runtime.GOOS, runtime.GOARCH))
		}
		runtimeCfg = wazero.NewRuntimeConfigCompiler()
	default:
		runtimeCfg = wazero.NewRuntimeConfig()
		if !compilerSupported() {
			tierName = "interpreter"
		}
	}

	if cfg.Interruptible {
		runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
	}
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	if err := instantiateHostModules(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}

	return &WazeroEngine{runtime: r, cfg: cfg, tierName: tierName}, nil
}

func instantiateHostModules(ctx context.Context, r wazero.Runtime) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return fmt.Errorf("instantiate WASI: %w", err)
	}

	builder := r.NewHostModuleBuilder(BenchModule)
	for _, name := range benchHooks {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, _ []uint64) {
			}), nil, nil).
			Export(name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate %s hooks: %w", BenchModule, err)
	}
	return nil
}

// compilerSupported reports whether wazero's compiler targets this platform.
func compilerSupported() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
	default:
		return false
	}
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "netbsd", "dragonfly", "windows":
		return true
	default:
		return false
	}
}

func (e *WazeroEngine) Name() string     { return string(BackendWazero) }
func (e *WazeroEngine) Tier() Tier       { return e.cfg.Tier }
func (e *WazeroEngine) TierName() string { return e.tierName }

// Compile compiles bytes with the runtime's compiler. wazero caches compiled
// code per runtime until the returned module is closed.
func (e *WazeroEngine) Compile(ctx context.Context, bytes []byte) (Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, bytes)
	if err != nil {
		return nil, compileError(bytes, err)
	}
	return &WazeroModule{engine: e, compiled: compiled, bytes: bytes}, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// WazeroModule is a compiled WASM module
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
	bytes    []byte
}

// Instantiate creates an anonymous instance with WASI wired to the engine's
// guest writers, preopens and argv. The entry point is not called, but a
// start function is, and its failures are execution errors.
func (m *WazeroModule) Instantiate(ctx context.Context) (Instance, error) {
	cfg := m.engine.cfg
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions().
		WithStdout(cfg.stdout()).
		WithStderr(cfg.stderr()).
		WithArgs(cfg.args()...).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep()

	if len(cfg.Dirs) > 0 {
		fsCfg := wazero.NewFSConfig()
		for _, d := range cfg.Dirs {
			fsCfg = fsCfg.WithDirMount(d.Host, d.Guest)
		}
		modCfg = modCfg.WithFSConfig(fsCfg)
	}

	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modCfg)
	if err != nil {
		if startFailed(m.bytes) {
			if runErr := wazeroRunError(ctx, startEntry, err); runErr != nil {
				return nil, runErr
			}
		}
		return nil, errors.Instantiation(err)
	}
	return &WazeroInstance{module: mod}, nil
}

// Close releases the compiled code.
func (m *WazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// WazeroInstance is an instantiated module. It is not safe for concurrent use.
type WazeroInstance struct {
	module api.Module
}

func (i *WazeroInstance) Run(ctx context.Context, entry string) error {
	fn := i.module.ExportedFunction(entry)
	if fn == nil {
		return errors.MissingEntry(entry)
	}
	_, err := fn.Call(ctx)
	return wazeroRunError(ctx, entry, err)
}

func (i *WazeroInstance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}

func wazeroRunError(ctx context.Context, entry string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *sys.ExitError
	if stderrors.As(err, &exitErr) {
		switch code := exitErr.ExitCode(); code {
		case 0:
			return nil
		case sys.ExitCodeDeadlineExceeded:
			return errors.Timeout(err)
		case sys.ExitCodeContextCanceled:
			return errors.Canceled(errors.PhaseExecute, err)
		default:
			Logger().Debug("guest exited", zap.String("entry", entry), zap.Uint32("code", code))
			return errors.Exit(entry, code)
		}
	}
	if ctx.Err() != nil {
		return interrupted(ctx, err)
	}
	return errors.Trap(entry, err)
}
