// Package bench times WebAssembly compilation and execution.
//
// A Runner loads a binary once and repeats one operation a fixed number of
// times: compile only (ModeCompile), or compile, instantiate and invoke the
// entry point (ModeExecute). Each phase is timed on the monotonic clock and
// nothing else (file I/O, releasing compiled code) falls inside a bracket.
//
//	e, _ := engine.New(ctx, engine.Config{Tier: engine.TierOptimizing})
//	defer e.Close(ctx)
//
//	res, err := bench.NewRunner(e).Run(ctx, bench.Config{
//	    BinaryPath: "benchmark.wasm",
//	    Mode:       bench.ModeExecute,
//	    Iterations: 30,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bench.WriteText(os.Stdout, res)
//
// Runs are strictly sequential and stop at the first error; a failed run
// returns no partial result.
package bench
