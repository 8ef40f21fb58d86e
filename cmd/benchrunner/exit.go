package main

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/wippyai/wasm-bench/errors"
)

// Process exit codes, one per error class.
const (
	exitOK        = 0
	exitFailure   = 1 // report output
	exitUsage     = 2 // flags, arguments, configuration
	exitFile      = 3
	exitCompile   = 4
	exitLink      = 5
	exitExecution = 6
	exitCanceled  = 130
)

// exitError carries an explicit exit code for failures outside the error
// taxonomy.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

func outputError(what string, err error) error {
	return &exitError{code: exitFailure, err: fmt.Errorf("%s: %w", what, err)}
}

// exitCode maps err to a process exit code. Errors cobra produces for bad
// arguments carry no phase and are usage errors.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if stderrors.As(err, &ee) {
		return ee.code
	}
	if stderrors.Is(err, context.Canceled) {
		return exitCanceled
	}
	phase, ok := errors.PhaseOf(err)
	if !ok {
		return exitUsage
	}
	switch phase {
	case errors.PhaseLoad:
		return exitFile
	case errors.PhaseCompile:
		return exitCompile
	case errors.PhaseLinking:
		return exitLink
	case errors.PhaseExecute:
		return exitExecution
	default:
		return exitUsage
	}
}
