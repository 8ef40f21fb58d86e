// Package wasmbench benchmarks WebAssembly compilation and execution across
// engines.
//
// A run loads one binary, repeats compile (or compile, instantiate and
// execute under WASI) a fixed number of times on a single engine, and
// reports the mean time of each phase along with per-iteration samples.
//
// # Architecture Overview
//
//	wasmbench/
//	├── bench/              Benchmark runner, statistics, text/JSON/HTML reports
//	├── engine/             Engine interface; wazero, wasmtime and wasmer adapters
//	├── wasm/               Structural decoder and validator for core modules
//	├── errors/             Structured errors by phase and kind
//	├── cmd/benchrunner/    Command line interface
//	└── internal/testwasm/  Hand-assembled test binaries
//
// # Quick Start
//
//	e, err := engine.New(ctx, engine.Config{Tier: engine.TierOptimizing})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Close(ctx)
//
//	res, err := bench.NewRunner(e).Run(ctx, bench.Config{
//	    BinaryPath: "app.wasm",
//	    Mode:       bench.ModeCompile,
//	    Iterations: 30,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bench.WriteText(os.Stdout, res)
//
// Output:
//
//	Compiler: compiler
//	Compilation took: 1.482ms
//
// # Engines
//
// wazero is always available. wasmtime and wasmer link native libraries and
// are enabled with cgo and a build tag:
//
//	CGO_ENABLED=1 go build -tags wasmtime ./cmd/benchrunner
//	CGO_ENABLED=1 go build -tags wasmer ./cmd/benchrunner
//
// # Error Handling
//
// Every failure is an *errors.Error carrying the phase it happened in
// (config, load, compile, linking, execute), a kind, and the 1-based
// iteration when one was running:
//
//	if errors.Is(err, errors.ErrLink) {
//	    var missing *errors.MissingImportsError
//	    if stderrors.As(err, &missing) {
//	        for _, imp := range missing.Imports {
//	            fmt.Println(imp.Module, imp.Name)
//	        }
//	    }
//	}
package wasmbench
