// Command benchrunner times WebAssembly compilation and execution.
//
// Usage:
//
//	benchrunner compile <path> [--iterations N] [--tier baseline|optimizing]
//	benchrunner execute <path> [--iterations N] [--tier baseline|optimizing]
//	benchrunner inspect <path>
//
// A directory holding <name>/benchmark.wasm members benchmarks each member in
// turn. The binary path may also come from WASM_PATH. Every flag can be set with a
// BENCHRUNNER_ environment variable (BENCHRUNNER_GUEST_LOG for --guest-log)
// or a config file passed with --config.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs one command line and returns the process exit code. Errors
// are printed to errOut; reports go to out.
func execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	_, _ = io.WriteString(errOut, errorStyle.Render("Error:")+" "+err.Error()+"\n")
	return exitCode(err)
}
