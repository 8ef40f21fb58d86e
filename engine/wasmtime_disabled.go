//go:build !wasmtime || !cgo

package engine

import "github.com/wippyai/wasm-bench/errors"

const wasmtimeAvailable = false

func newWasmtimeEngine(Config) (Engine, error) {
	return nil, errors.Unsupported(errors.PhaseConfig,
		"wasmtime engine is not built in (rebuild with CGO_ENABLED=1 -tags wasmtime)")
}
