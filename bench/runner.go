package bench

import (
	"context"
	stderrors "errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bench/engine"
	"github.com/wippyai/wasm-bench/errors"
	"github.com/wippyai/wasm-bench/wasm"
)

// Observer receives each sample as soon as it is recorded.
type Observer func(Sample)

// Runner times an engine against one binary. It is not safe for concurrent
// use; iterations always run one after another.
type Runner struct {
	engine   engine.Engine
	log      *zap.Logger
	observer Observer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithObserver registers a callback invoked after every sample.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

// NewRunner creates a runner for e. The caller keeps ownership of e.
func NewRunner(e engine.Engine, opts ...Option) *Runner {
	r := &Runner{engine: e, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadBytecode reads the binary at path. Missing files, permission problems,
// directories and other non-regular files are load-phase errors.
func LoadBytecode(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.File(path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.NotRegular(path, info.Mode())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.File(path, err)
	}
	return data, nil
}

// Compile compiles bytes. No module is returned on failure.
func (r *Runner) Compile(ctx context.Context, bytes []byte) (engine.Module, error) {
	mod, err := r.engine.Compile(ctx, bytes)
	if err != nil {
		if _, ok := errors.PhaseOf(err); !ok {
			err = errors.Compile(errors.KindValidationFailed, err)
		}
		return nil, err
	}
	return mod, nil
}

// Instantiate links mod against the host imports.
func (r *Runner) Instantiate(ctx context.Context, mod engine.Module) (engine.Instance, error) {
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		if _, ok := errors.PhaseOf(err); !ok {
			err = errors.Instantiation(err)
		}
		return nil, err
	}
	return inst, nil
}

// RunIteration performs one timed iteration: compile, or compile, instantiate
// and run the entry point. Each phase has its own bracket; releasing the
// module and instance happens outside them. index is 1-based and tags any
// error.
func (r *Runner) RunIteration(ctx context.Context, cfg Config, bytes []byte, index int) (Sample, error) {
	cfg = cfg.withDefaults()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	s := Sample{Iteration: index}

	start := time.Now()
	mod, err := r.Compile(ctx, bytes)
	s.Compile = time.Since(start)
	if err != nil {
		return Sample{}, errors.WithIteration(err, errors.PhaseCompile, index)
	}
	defer r.release("module", index, func() error { return mod.Close(context.Background()) })

	if cfg.Mode == ModeCompile {
		return s, nil
	}

	start = time.Now()
	inst, err := r.Instantiate(ctx, mod)
	s.Instantiate = time.Since(start)
	if err != nil {
		return Sample{}, errors.WithIteration(err, errors.PhaseLinking, index)
	}
	defer r.release("instance", index, func() error { return inst.Close(context.Background()) })

	start = time.Now()
	err = inst.Run(ctx, cfg.Entry)
	s.Execute = time.Since(start)
	if err != nil {
		return Sample{}, errors.WithIteration(err, errors.PhaseExecute, index)
	}
	return s, nil
}

func (r *Runner) release(what string, index int, closeFn func() error) {
	if err := closeFn(); err != nil {
		r.log.Warn("release failed",
			zap.String("what", what),
			zap.Int("iteration", index),
			zap.Error(err))
	}
}

// Run validates cfg, loads the binary once and performs cfg.Iterations
// iterations sequentially. In execute mode an untimed preflight compiles,
// links and looks up the entry point first, so link failures surface before
// any sample. Engines implementing engine.Precompiler also report the size
// of their compiled code. The first error aborts the run and no partial
// result is returned.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	bytes, err := LoadBytecode(cfg.BinaryPath)
	if err != nil {
		return nil, err
	}

	log := r.log.With(
		zap.String("path", cfg.BinaryPath),
		zap.String("mode", string(cfg.Mode)),
		zap.String("engine", r.engine.Name()),
	)
	log.Debug("binary loaded", zap.Int("size", len(bytes)), zap.Int("iterations", cfg.Iterations))

	if cfg.Mode == ModeExecute {
		if err := r.preflight(ctx, cfg, bytes, log); err != nil {
			return nil, err
		}
	}

	codeSize, err := r.codeSize(ctx, bytes)
	if err != nil {
		return nil, err
	}

	phase := errors.PhaseCompile
	if cfg.Mode == ModeExecute {
		phase = errors.PhaseExecute
	}

	samples := make([]Sample, 0, cfg.Iterations)
	for i := 1; i <= cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(phase, errors.KindCanceled).
				Detail("run canceled").
				Iteration(i).
				Cause(err).
				Build()
		}
		s, err := r.RunIteration(ctx, cfg, bytes, i)
		if err != nil {
			log.Debug("iteration failed", zap.Int("iteration", i), zap.Error(err))
			return nil, err
		}
		samples = append(samples, s)
		log.Debug("iteration",
			zap.Int("iteration", i),
			zap.Duration("compile", s.Compile),
			zap.Duration("instantiate", s.Instantiate),
			zap.Duration("execute", s.Execute))
		if r.observer != nil {
			r.observer(s)
		}
	}

	res := newResult(cfg, len(bytes), r.engine.Name(), r.engine.TierName(), samples)
	res.CodeSize = codeSize
	return res, nil
}

// codeSize precompiles bytes once, untimed, and returns the size of the
// engine's serialized artifact. Engines that cannot serialize report 0.
func (r *Runner) codeSize(ctx context.Context, bytes []byte) (int, error) {
	p, ok := r.engine.(engine.Precompiler)
	if !ok {
		return 0, nil
	}
	artifact, err := p.Precompile(ctx, bytes)
	if err != nil {
		if _, ok := errors.PhaseOf(err); !ok {
			err = errors.Compile(errors.KindValidationFailed, err)
		}
		return 0, err
	}
	r.log.Debug("precompiled", zap.Int("code_size", len(artifact)))
	return len(artifact), nil
}

// preflight compiles and instantiates once, untimed, and checks imports and
// the entry point. The structural decoder supplies the import list; when it
// cannot decode a binary the engine accepts, the engine's own linking is the
// only check.
func (r *Runner) preflight(ctx context.Context, cfg Config, bytes []byte, log *zap.Logger) error {
	decoded, decodeErr := wasm.Parse(bytes)

	mod, err := r.Compile(ctx, bytes)
	if err != nil {
		return err
	}
	defer r.release("module", 0, func() error { return mod.Close(context.Background()) })

	if decodeErr != nil {
		log.Warn("engine accepted a binary the decoder rejects; skipping import checks", zap.Error(decodeErr))
	} else if err := engine.CheckImports(decoded); err != nil {
		return err
	}

	inst, err := r.Instantiate(ctx, mod)
	switch {
	case err == nil:
		defer r.release("instance", 0, func() error { return inst.Close(context.Background()) })
	case stderrors.Is(err, errors.ErrExecution):
		// A failing start function is reported by the first iteration.
		log.Debug("start function failed in preflight", zap.Error(err))
	default:
		return err
	}

	if decoded != nil {
		if _, ok := decoded.ExportedFunc(cfg.Entry); !ok {
			return errors.MissingEntry(cfg.Entry)
		}
	}
	return nil
}
