// Package engine hosts WebAssembly engines behind one compile/instantiate/run
// interface so the benchmark runner can time them uniformly.
//
// # Backends
//
//	wazero   - pure Go, always built
//	wasmtime - wasmtime-go via cgo, built with -tags wasmtime
//	wasmer   - wasmer-go via cgo, built with -tags wasmer
//
// A backend missing from the build fails New with an unsupported error.
//
// # Tiers
//
// Tier is a hint. Each engine maps it onto its own compilers and reports
// what it picked through TierName:
//
//	Engine     Baseline              Optimizing
//	──────────────────────────────────────────────────
//	wazero     interpreter           compiler
//	wasmtime   cranelift (none)      cranelift (speed)
//	wasmer     singlepass            cranelift
//
// # Lifecycle
//
//  1. New creates the engine and its host modules once per run
//  2. Engine.Compile turns bytes into a Module (compile phase)
//  3. Module.Instantiate links it against the host imports (linking phase)
//  4. Instance.Run invokes the entry point (execute phase)
//
// Closing a Module releases its compiled code, so compiling the same bytes
// again does real work instead of hitting an engine cache.
//
// # Host imports
//
// Every guest may import WASI preview1 (wasi_snapshot_preview1) and the
// sightglass hooks bench.start and bench.end, which are no-ops. CheckImports
// compares a decoded module against this set and reports every unresolved or
// mismatched import at once, before any engine tries to link.
//
// # Errors
//
// All failures are *errors.Error values: compile failures are classified as
// malformed or validation failed by decoding the binary with the wasm
// package, link failures carry the missing imports, and run failures are
// traps, non-zero WASI exits or timeouts. A WASI exit with status 0 is not an
// error.
//
// # Thread Safety
//
// Engines and modules are used from a single goroutine by the runner and are
// not safe for concurrent use.
package engine
