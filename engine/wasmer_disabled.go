//go:build !wasmer || !cgo || windows

package engine

import "github.com/wippyai/wasm-bench/errors"

const wasmerAvailable = false

func newWasmerEngine(Config) (Engine, error) {
	return nil, errors.Unsupported(errors.PhaseConfig,
		"wasmer engine is not built in (rebuild with CGO_ENABLED=1 -tags wasmer)")
}
