package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bench/errors"
	"github.com/wippyai/wasm-bench/wasm"
)

// DefaultEntry is the entry point of a WASI command.
const DefaultEntry = "_start"

// Engine compiles WebAssembly binaries into modules.
type Engine interface {
	// Name returns the backend name, e.g. "wazero".
	Name() string
	// Tier returns the tier requested at construction.
	Tier() Tier
	// TierName names the compiler actually in use, e.g. "cranelift".
	TierName() string
	// Compile compiles bytes without instantiating them. Failures are
	// compile-phase *errors.Error values.
	Compile(ctx context.Context, bytes []byte) (Module, error)
	Close(ctx context.Context) error
}

// Precompiler is implemented by engines that can serialize compiled code.
type Precompiler interface {
	// Precompile compiles bytes and returns the engine's serialized
	// artifact. Failures are compile-phase *errors.Error values.
	Precompile(ctx context.Context, bytes []byte) ([]byte, error)
}

// Module is a compiled binary. Closing it releases any compiled code so the
// next Compile of the same bytes starts over.
type Module interface {
	// Instantiate links the module against the host imports and runs no guest
	// code. Failures are linking-phase *errors.Error values.
	Instantiate(ctx context.Context) (Instance, error)
	Close(ctx context.Context) error
}

// Instance is a linked module ready to run.
type Instance interface {
	// Run invokes the exported function entry with no arguments. A WASI exit
	// with status 0 is success.
	Run(ctx context.Context, entry string) error
	Close(ctx context.Context) error
}

// Mount maps a host directory into the guest filesystem.
type Mount struct {
	Host  string
	Guest string
}

// ParseMount parses "host[:guest]". Without a guest path the host path is
// mounted at the same location.
func ParseMount(s string) (Mount, error) {
	if s == "" {
		return Mount{}, fmt.Errorf("empty mount")
	}
	host, guest, found := strings.Cut(s, ":")
	if !found || guest == "" {
		guest = host
	}
	if host == "" {
		return Mount{}, fmt.Errorf("mount %q has no host directory", s)
	}
	return Mount{Host: host, Guest: guest}, nil
}

// Config holds configuration for engine creation.
type Config struct {
	Backend Backend
	Tier    Tier

	// Stdout and Stderr receive guest output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// Dirs are preopened for the guest.
	Dirs []Mount

	// Args are the guest's argv, program name first. Empty defaults to the
	// program name alone.
	Args []string

	// MemoryLimitPages caps linear memory per instance in 64KiB pages.
	// 0 keeps the engine default. Only wazero honors it.
	MemoryLimitPages uint32

	// Interruptible compiles context checks into guest code so a deadline or
	// cancellation stops a running guest. Off, guest code carries no checks
	// and a run ignores its context until the entry point returns. wasmer
	// never interrupts guest code; it abandons the call instead.
	Interruptible bool

	// Fuel turns on fuel metering with an unlimited budget, so runs include
	// the cost of metering. Only wasmtime supports it.
	Fuel bool
}

func (c Config) stdout() io.Writer {
	if c.Stdout == nil {
		return io.Discard
	}
	return c.Stdout
}

func (c Config) stderr() io.Writer {
	if c.Stderr == nil {
		return io.Discard
	}
	return c.Stderr
}

func (c Config) args() []string {
	if len(c.Args) == 0 {
		return []string{"benchrunner"}
	}
	return c.Args
}

// New creates the engine selected by cfg.Backend.
func New(ctx context.Context, cfg Config) (Engine, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendWazero
	}
	var (
		e   Engine
		err error
	)
	if cfg.Fuel && backend != BackendWasmtime {
		return nil, errors.Unsupported(errors.PhaseConfig,
			fmt.Sprintf("fuel metering on %s (only wasmtime meters fuel)", backend))
	}
	switch backend {
	case BackendWazero:
		e, err = NewWazeroEngine(ctx, cfg)
	case BackendWasmtime:
		e, err = newWasmtimeEngine(cfg)
	case BackendWasmer:
		e, err = newWasmerEngine(cfg)
	default:
		return nil, errors.InvalidInput("unknown engine %q", backend)
	}
	if err != nil {
		return nil, err
	}
	Logger().Debug("engine created",
		zap.String("backend", e.Name()),
		zap.String("compiler", e.TierName()))
	return e, nil
}

// compileError classifies an engine compile failure by decoding bytes with the
// structural decoder: bytes that do not decode are malformed, anything else the
// engine rejected failed validation.
func compileError(bytes []byte, cause error) *errors.Error {
	kind := errors.KindValidationFailed
	if err := wasm.Validate(bytes); err != nil && wasm.IsMalformed(err) {
		kind = errors.KindMalformed
	}
	return errors.Compile(kind, cause)
}

// interrupted classifies a guest run stopped through ctx: an expired deadline
// is a timeout, anything else a cancellation.
func interrupted(ctx context.Context, cause error) *errors.Error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		return errors.Timeout(cause)
	}
	if cause == nil {
		cause = ctxErr
	} else if !stderrors.Is(cause, ctxErr) {
		cause = fmt.Errorf("%w: %w", ctxErr, cause)
	}
	if stderrors.Is(ctxErr, context.DeadlineExceeded) {
		return errors.Timeout(cause)
	}
	return errors.Canceled(errors.PhaseExecute, cause)
}

// startEntry names the start function in execution errors.
const startEntry = "start"

// startFailed reports whether a failed instantiation of bytes happened in
// guest code: every import resolves and the module has a start function
// that runs during instantiation.
func startFailed(bytes []byte) bool {
	m, err := wasm.Parse(bytes)
	if err != nil || m.Start == nil {
		return false
	}
	return CheckImports(m) == nil
}
