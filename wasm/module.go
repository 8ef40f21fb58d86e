package wasm

import (
	"fmt"
	"strings"
)

// ValType is a WebAssembly value type encoding.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	case ValRefNull:
		return "ref null"
	case ValRef:
		return "ref"
	default:
		return fmt.Sprintf("0x%02x", byte(v))
	}
}

// Module is the structural description of a WebAssembly binary.
// Function bodies are framed but not decoded.
type Module struct {
	Start *uint32

	// Types holds function signatures. It is nil when TypesIncomplete is set.
	Types []FuncType

	Imports        []Import
	Funcs          []uint32 // type indices of defined functions
	Exports        []Export
	Sections       []Section
	CustomSections []string
	CodeCount      int
	Size           int

	// TypesIncomplete is set when the type section uses encodings (GC
	// proposal) that are framed but not decoded.
	TypesIncomplete bool
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (f FuncType) String() string {
	return fmt.Sprintf("(%s) -> (%s)", joinTypes(f.Params), joinTypes(f.Results))
}

// Equal reports whether two signatures are identical.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

func joinTypes(ts []ValType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// Import is an entry of the import section.
type Import struct {
	Module  string
	Name    string
	Kind    byte
	TypeIdx uint32 // valid for KindFunc and KindTag
}

// Export is an entry of the export section.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Section records the position and size of one section in the binary.
type Section struct {
	ID     byte
	Offset int
	Size   int
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == KindFunc {
			n++
		}
	}
	return n
}

// NumFuncs returns the size of the function index space.
func (m *Module) NumFuncs() int {
	return m.NumImportedFuncs() + len(m.Funcs)
}

// FuncImports returns the imported functions in index order.
func (m *Module) FuncImports() []Import {
	var out []Import
	for _, imp := range m.Imports {
		if imp.Kind == KindFunc {
			out = append(out, imp)
		}
	}
	return out
}

// ExportedFunc returns the export with the given name if it is a function.
func (m *Module) ExportedFunc(name string) (Export, bool) {
	for _, exp := range m.Exports {
		if exp.Name == name && exp.Kind == KindFunc {
			return exp, true
		}
	}
	return Export{}, false
}

// FuncSignature returns the signature of the function at idx in the function
// index space (imports first).
func (m *Module) FuncSignature(idx uint32) (FuncType, bool) {
	if m.TypesIncomplete {
		return FuncType{}, false
	}
	var typeIdx uint32
	imported := m.FuncImports()
	switch {
	case int(idx) < len(imported):
		typeIdx = imported[idx].TypeIdx
	case int(idx) < len(imported)+len(m.Funcs):
		typeIdx = m.Funcs[int(idx)-len(imported)]
	default:
		return FuncType{}, false
	}
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}

// ImportsFrom reports whether any import is drawn from the given module name.
func (m *Module) ImportsFrom(module string) bool {
	for _, imp := range m.Imports {
		if imp.Module == module {
			return true
		}
	}
	return false
}
