package bench

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteText writes the human-readable report:
//
//	Compiler: <compiler>
//	Code length: <n> bytes
//	Compilation took: <mean>ms
//	Execution took: <mean>ms
//
// The code length line appears when the engine reported one. The execution
// line appears in execute mode only and covers the entry point call;
// instantiation is reported by WriteJSON.
func WriteText(w io.Writer, res *Result) error {
	if _, err := fmt.Fprintf(w, "Compiler: %s\n", res.Compiler); err != nil {
		return err
	}
	if res.CodeSize > 0 {
		if _, err := fmt.Fprintf(w, "Code length: %d bytes\n", res.CodeSize); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "Compilation took: %.3fms\n", res.Compile.Mean); err != nil {
		return err
	}
	if res.Execute != nil {
		if _, err := fmt.Fprintf(w, "Execution took: %.3fms\n", res.Execute.Mean); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes res with every sample and per-phase statistics.
func WriteJSON(w io.Writer, res *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
