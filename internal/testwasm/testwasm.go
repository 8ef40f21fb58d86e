// Package testwasm provides hand-assembled WebAssembly binaries for tests.
//
// Each fixture is built from section helpers that compute sizes, so the
// binaries stay correct when a body changes.
package testwasm

import (
	"os"
	"path/filepath"
	"testing"
)

const (
	i32     = 0x7f
	funcTyp = 0x60
	end     = 0x0b
)

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Add exports add(i32, i32) -> i32 and has no imports.
var Add = module(
	section(1, vec(funcType([]byte{i32, i32}, []byte{i32}))),
	section(3, vec([]byte{0x00})),
	section(7, vec(export("add", 0x00, 0))),
	section(10, vec(body(
		0x20, 0x00, // local.get 0
		0x20, 0x01, // local.get 1
		0x6a, // i32.add
	))),
)

// Empty exports a no-op _start.
var Empty = module(
	section(1, vec(funcType(nil, nil))),
	section(3, vec([]byte{0x00})),
	section(7, vec(export("_start", 0x00, 0))),
	section(10, vec(body())),
)

// Hello is a WASI command whose _start writes "hello\n" to stdout with fd_write.
var Hello = module(
	section(1, vec(
		funcType([]byte{i32, i32, i32, i32}, []byte{i32}),
		funcType(nil, nil),
	)),
	section(2, vec(importFunc("wasi_snapshot_preview1", "fd_write", 0))),
	section(3, vec([]byte{0x01})),
	section(5, vec([]byte{0x00, 0x01})), // memory, min 1 page
	section(7, vec(
		export("memory", 0x02, 0),
		export("_start", 0x00, 1),
	)),
	section(10, vec(body(
		0x41, 0x01, // i32.const 1 (stdout)
		0x41, 0x00, // i32.const 0 (iovec)
		0x41, 0x01, // i32.const 1 (iovec count)
		0x41, 0x14, // i32.const 20 (nwritten)
		0x10, 0x00, // call fd_write
		0x1a, // drop
	))),
	section(11, vec(cat(
		[]byte{0x00, 0x41, 0x00, end}, // active, memory 0, offset 0
		bytes(cat(
			[]byte{0x08, 0x00, 0x00, 0x00}, // iovec.buf = 8
			[]byte{0x06, 0x00, 0x00, 0x00}, // iovec.len = 6
			[]byte(GuestOutput),
		)),
	))),
)

// GuestOutput is what one run of Hello writes to stdout.
const GuestOutput = "hello\n"

// MissingImport imports env.missing, which no host provides.
var MissingImport = module(
	section(1, vec(funcType(nil, nil))),
	section(2, vec(importFunc("env", "missing", 0))),
	section(3, vec([]byte{0x00})),
	section(7, vec(export("_start", 0x00, 1))),
	section(10, vec(body(0x10, 0x00))),
)

// MismatchedImport imports proc_exit with the wrong signature () -> ().
var MismatchedImport = module(
	section(1, vec(funcType(nil, nil))),
	section(2, vec(importFunc("wasi_snapshot_preview1", "proc_exit", 0))),
	section(3, vec([]byte{0x00})),
	section(7, vec(export("_start", 0x00, 1))),
	section(10, vec(body(0x10, 0x00))),
)

// Trap executes unreachable in _start.
var Trap = module(
	section(1, vec(funcType(nil, nil))),
	section(3, vec([]byte{0x00})),
	section(7, vec(export("_start", 0x00, 0))),
	section(10, vec(body(0x00))),
)

// StartTrap has a start function that executes unreachable, so it traps
// while being instantiated. Its _start is a no-op.
var StartTrap = module(
	section(1, vec(funcType(nil, nil))),
	section(3, vec([]byte{0x00}, []byte{0x00})),
	section(7, vec(export("_start", 0x00, 1))),
	section(8, uleb(0)),
	section(10, vec(body(0x00), body())),
)

// ExitCode calls proc_exit(3) from _start.
var ExitCode = exitWith(3)

// ExitZero calls proc_exit(0) from _start.
//
// Both export a memory, which wasmer requires of every WASI module.
var ExitZero = exitWith(0)

// BenchHooks calls the sightglass bench.start and bench.end hooks from _start.
var BenchHooks = module(
	section(1, vec(funcType(nil, nil))),
	section(2, vec(
		importFunc("bench", "start", 0),
		importFunc("bench", "end", 0),
	)),
	section(3, vec([]byte{0x00})),
	section(7, vec(export("_start", 0x00, 2))),
	section(10, vec(body(0x10, 0x00, 0x10, 0x01))),
)

// Loop spins forever in _start.
var Loop = module(
	section(1, vec(funcType(nil, nil))),
	section(3, vec([]byte{0x00})),
	section(7, vec(export("_start", 0x00, 0))),
	section(10, vec(body(
		0x03, 0x40, // loop
		0x0c, 0x00, // br 0
		end,
	))),
)

// TruncatedMagic is cut inside the magic number.
var TruncatedMagic = []byte{0x00, 0x61, 0x73}

// BadVersion carries version 2.
var BadVersion = []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}

// MissingCode declares a function but has no code section.
var MissingCode = module(
	section(1, vec(funcType(nil, nil))),
	section(3, vec([]byte{0x00})),
)

// BadExportIndex decodes but exports a function index that does not exist.
var BadExportIndex = module(
	section(1, vec(funcType(nil, nil))),
	section(3, vec([]byte{0x00})),
	section(7, vec(export("_start", 0x00, 5))),
	section(10, vec(body())),
)

// BadTypeIndex decodes but its function references a type that does not exist.
var BadTypeIndex = module(
	section(1, vec(funcType(nil, nil))),
	section(3, vec([]byte{0x04})),
	section(10, vec(body())),
)

func exitWith(code byte) []byte {
	return module(
		section(1, vec(
			funcType([]byte{i32}, nil),
			funcType(nil, nil),
		)),
		section(2, vec(importFunc("wasi_snapshot_preview1", "proc_exit", 0))),
		section(3, vec([]byte{0x01})),
		section(5, vec([]byte{0x00, 0x01})),
		section(7, vec(
			export("memory", 0x02, 0),
			export("_start", 0x00, 1),
		)),
		section(10, vec(body(0x41, code, 0x10, 0x00))),
	)
}

// WriteFile writes data into a fresh temp directory and returns its path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func module(sections ...[]byte) []byte {
	return cat(append([][]byte{header}, sections...)...)
}

func section(id byte, content []byte) []byte {
	return cat([]byte{id}, uleb(uint32(len(content))), content)
}

// vec encodes a vector: element count followed by the elements.
func vec(elems ...[]byte) []byte {
	return cat(append([][]byte{uleb(uint32(len(elems)))}, elems...)...)
}

func name(s string) []byte {
	return bytes([]byte(s))
}

// bytes encodes a length-prefixed byte vector.
func bytes(b []byte) []byte {
	return cat(uleb(uint32(len(b))), b)
}

func funcType(params, results []byte) []byte {
	return cat([]byte{funcTyp}, uleb(uint32(len(params))), params, uleb(uint32(len(results))), results)
}

func importFunc(module, field string, typeIdx byte) []byte {
	return cat(name(module), name(field), []byte{0x00, typeIdx})
}

func export(field string, kind, idx byte) []byte {
	return cat(name(field), []byte{kind, idx})
}

// body encodes a function body without locals, appending the final end.
func body(code ...byte) []byte {
	b := cat([]byte{0x00}, code, []byte{end})
	return cat(uleb(uint32(len(b))), b)
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func cat(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
