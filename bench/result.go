package bench

import (
	"encoding/json"
	"math"
	"slices"
	"time"
)

// Sample is the measurement of one iteration. Phases that did not run are 0.
type Sample struct {
	Iteration   int // 1-based
	Compile     time.Duration
	Instantiate time.Duration
	Execute     time.Duration
}

// Millis converts d to floating-point milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type sampleJSON struct {
	Iteration     int     `json:"iteration"`
	CompileMs     float64 `json:"compile_ms"`
	InstantiateMs float64 `json:"instantiate_ms,omitempty"`
	ExecuteMs     float64 `json:"execute_ms,omitempty"`
}

// MarshalJSON encodes the sample with its phases in milliseconds. Phases that
// did not run are omitted, except compile.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		Iteration:     s.Iteration,
		CompileMs:     Millis(s.Compile),
		InstantiateMs: Millis(s.Instantiate),
		ExecuteMs:     Millis(s.Execute),
	})
}

// Stats summarizes one phase across all samples, in milliseconds.
type Stats struct {
	Mean   float64 `json:"mean_ms"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	Median float64 `json:"median_ms"`
	StdDev float64 `json:"stddev_ms"`
}

// NewStats computes statistics over values. StdDev is the sample standard
// deviation and is 0 for fewer than two values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	n := float64(len(values))
	st := Stats{
		Mean: sum / n,
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
	}

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		st.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		st.Median = sorted[mid]
	}

	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			d := v - st.Mean
			sq += d * d
		}
		st.StdDev = math.Sqrt(sq / (n - 1))
	}
	return st
}

// Result is the outcome of a completed run. It is never mutated after Run
// returns it.
type Result struct {
	Name       string   `json:"name,omitempty"`
	Path       string   `json:"path"`
	Size       int      `json:"size_bytes"`
	Mode       Mode     `json:"mode"`
	Engine     string   `json:"engine"`
	Compiler   string   `json:"compiler"`
	Iterations int      `json:"iterations"`
	Samples    []Sample `json:"samples"`

	// CodeSize is the size of the engine's precompiled artifact, 0 when the
	// engine cannot serialize compiled code.
	CodeSize int `json:"code_size_bytes,omitempty"`

	Compile     Stats  `json:"compile"`
	Instantiate *Stats `json:"instantiate,omitempty"`
	Execute     *Stats `json:"execute,omitempty"`
}

func newResult(cfg Config, size int, engineName, compiler string, samples []Sample) *Result {
	r := &Result{
		Name:       cfg.Name,
		Path:       cfg.BinaryPath,
		Size:       size,
		Mode:       cfg.Mode,
		Engine:     engineName,
		Compiler:   compiler,
		Iterations: len(samples),
		Samples:    samples,
		Compile:    NewStats(phase(samples, func(s Sample) time.Duration { return s.Compile })),
	}
	if cfg.Mode == ModeExecute {
		inst := NewStats(phase(samples, func(s Sample) time.Duration { return s.Instantiate }))
		exec := NewStats(phase(samples, func(s Sample) time.Duration { return s.Execute }))
		r.Instantiate = &inst
		r.Execute = &exec
	}
	return r
}

func phase(samples []Sample, pick func(Sample) time.Duration) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = Millis(pick(s))
	}
	return out
}
