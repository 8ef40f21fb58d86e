// Package wasm decodes the structure of WebAssembly binary modules.
//
// It is independent of any engine: the benchmark harness uses it to describe
// the module under test, to tell malformed binaries from ones that decode but
// fail validation, and as a second opinion on engine compile verdicts.
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.Parse(data)
//	if err != nil {
//	    if wasm.IsMalformed(err) {
//	        // bad header, truncated section, size mismatch...
//	    }
//	    log.Fatal(err)
//	}
//
// # What is checked
//
//   - Magic number and version
//   - Section framing, canonical order and unknown section IDs
//   - Type, import, function, export, start and code sections are decoded
//   - Function and code section counts agree
//   - Type, function and export indices are in bounds
//   - Export names are unique; the start function has type () -> ()
//
// Function bodies are framed by size and never decoded, so instruction-level
// validation is left to the engine. Type sections using GC proposal encodings
// are framed but not decoded; Module.TypesIncomplete reports this.
package wasm
