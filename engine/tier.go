package engine

import (
	"fmt"
	"strings"
)

// Tier is a hint for which compiler an engine should use.
type Tier int

const (
	// TierDefault leaves the choice to the engine.
	TierDefault Tier = iota
	// TierBaseline selects the fastest-to-compile tier.
	TierBaseline
	// TierOptimizing selects the tier producing the fastest code.
	TierOptimizing
)

func (t Tier) String() string {
	switch t {
	case TierBaseline:
		return "baseline"
	case TierOptimizing:
		return "optimizing"
	default:
		return "default"
	}
}

// ParseTier parses "baseline" or "optimizing". The empty string is TierDefault.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return TierDefault, nil
	case "baseline":
		return TierBaseline, nil
	case "optimizing":
		return TierOptimizing, nil
	default:
		return TierDefault, fmt.Errorf("unknown tier %q (want baseline or optimizing)", s)
	}
}

// Backend names an engine implementation.
type Backend string

const (
	BackendWazero   Backend = "wazero"
	BackendWasmtime Backend = "wasmtime"
	BackendWasmer   Backend = "wasmer"
)

// Backends lists every backend known to this build, in preference order.
func Backends() []Backend {
	return []Backend{BackendWazero, BackendWasmtime, BackendWasmer}
}

// ParseBackend parses an engine name. The empty string selects wazero.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendWazero, nil
	case BackendWazero, BackendWasmtime, BackendWasmer:
		return b, nil
	default:
		return "", fmt.Errorf("unknown engine %q", s)
	}
}

// Available reports whether b is compiled into this binary. wasmtime and
// wasmer need cgo and their build tags.
func Available(b Backend) bool {
	switch b {
	case BackendWazero:
		return true
	case BackendWasmtime:
		return wasmtimeAvailable
	case BackendWasmer:
		return wasmerAvailable
	default:
		return false
	}
}
