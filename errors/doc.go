// Package errors provides structured error types for the benchmark harness.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The phases map onto the harness taxonomy:
//
//	PhaseLoad     FileError       the binary could not be read
//	PhaseCompile  CompileError    the engine rejected the bytes
//	PhaseLinking  LinkError       an import could not be satisfied
//	PhaseExecute  ExecutionError  the guest trapped, exited non-zero or timed out
//	PhaseConfig                   the benchmark configuration is invalid
//
// The Error type carries the failing iteration (1-based, 0 when the failure is
// not tied to an iteration), the file or import involved, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseExecute, errors.KindTrap).
//		Iteration(3).
//		Path("_start").
//		Cause(trapErr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.File(path, osErr)
//	err := errors.Compile(errors.KindMalformed, cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
