package bench

import (
	"fmt"
	"strings"
	"time"

	"github.com/wippyai/wasm-bench/engine"
	"github.com/wippyai/wasm-bench/errors"
)

// Mode selects what one iteration measures.
type Mode string

const (
	// ModeCompile times module compilation only.
	ModeCompile Mode = "compile"
	// ModeExecute times compilation, instantiation and the entry point call.
	ModeExecute Mode = "execute"
)

// ParseMode parses "compile" or "execute".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeCompile, ModeExecute:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want compile or execute)", s)
	}
}

// DefaultIterations is the iteration count used by the CLI.
const DefaultIterations = 30

// Config describes one benchmark run. It is a value: the runner works on its
// own copy.
type Config struct {
	// Name labels the run in suite reports. Optional.
	Name string

	BinaryPath string
	Mode       Mode
	Iterations int

	// Tier is recorded for reporting. The engine was already built for it.
	Tier engine.Tier

	// Entry is the exported function invoked in execute mode.
	// Empty means engine.DefaultEntry.
	Entry string

	// Timeout bounds each iteration. 0 disables it.
	Timeout time.Duration
}

// Validate checks c without touching the filesystem.
func (c Config) Validate() error {
	if c.BinaryPath == "" {
		return errors.InvalidInput("binary path is required")
	}
	if c.Mode != ModeCompile && c.Mode != ModeExecute {
		return errors.InvalidInput("unknown mode %q", c.Mode)
	}
	if c.Iterations < 1 {
		return errors.InvalidInput("iterations must be >= 1, got %d", c.Iterations)
	}
	if c.Timeout < 0 {
		return errors.InvalidInput("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Entry == "" {
		c.Entry = engine.DefaultEntry
	}
	return c
}
