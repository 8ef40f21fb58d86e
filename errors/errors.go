package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig  Phase = "config"  // benchmark configuration
	PhaseLoad    Phase = "load"    // reading the binary from disk
	PhaseCompile Phase = "compile" // engine compilation
	PhaseLinking Phase = "linking" // import resolution and instantiation
	PhaseExecute Phase = "execute" // entry point invocation
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindPermissionDenied  Kind = "permission_denied"
	KindIO                Kind = "io"
	KindMalformed         Kind = "malformed"
	KindValidationFailed  Kind = "validation_failed"
	KindMissingImport     Kind = "missing_import"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindInstantiation     Kind = "instantiation"
	KindMissingEntry      Kind = "missing_entry"
	KindTrap              Kind = "trap"
	KindExit              Kind = "exit"
	KindTimeout           Kind = "timeout"
	KindCanceled          Kind = "canceled"
	KindInvalidInput      Kind = "invalid_input"
	KindUnsupported       Kind = "unsupported"
)

// Error is the structured error type used throughout the harness
type Error struct {
	Cause     error
	Phase     Phase
	Kind      Kind
	Path      string
	Detail    string
	Iteration int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Iteration > 0 {
		fmt.Fprintf(&b, " in iteration %d", e.Iteration)
	}

	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Kind matches any error of the same Phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Phase != t.Phase {
		return false
	}
	return t.Kind == "" || e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the file path, export or import name involved
func (b *Builder) Path(path string) *Builder {
	b.err.Path = path
	return b
}

// Iteration sets the 1-based iteration the error occurred in
func (b *Builder) Iteration(i int) *Builder {
	b.err.Iteration = i
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Phase sentinels for errors.Is checks against a whole category.
var (
	ErrFile      = &Error{Phase: PhaseLoad}
	ErrCompile   = &Error{Phase: PhaseCompile}
	ErrLink      = &Error{Phase: PhaseLinking}
	ErrExecution = &Error{Phase: PhaseExecute}
	ErrConfig    = &Error{Phase: PhaseConfig}
)

// PhaseOf returns the phase of the first *Error in err's chain.
func PhaseOf(err error) (Phase, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Phase, true
	}
	return "", false
}

// WithIteration returns err tagged with the 1-based iteration index.
// Errors that are not *Error are wrapped as a failure of the given phase.
func WithIteration(err error, phase Phase, iteration int) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		tagged := *e
		tagged.Iteration = iteration
		return &tagged
	}
	return &Error{
		Phase:     phase,
		Kind:      KindIO,
		Iteration: iteration,
		Cause:     err,
	}
}

// Convenience constructors for common error patterns

// File classifies a failure to read the binary at path
func File(path string, cause error) *Error {
	kind := KindIO
	switch {
	case stderrors.Is(cause, fs.ErrNotExist):
		kind = KindNotFound
	case stderrors.Is(cause, fs.ErrPermission):
		kind = KindPermissionDenied
	}
	return &Error{
		Phase: PhaseLoad,
		Kind:  kind,
		Path:  path,
		Cause: cause,
	}
}

// NotRegular creates a file error for a path that is not a regular file
func NotRegular(path string, mode fs.FileMode) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindIO,
		Path:   path,
		Detail: fmt.Sprintf("not a regular file (mode %s)", mode),
	}
}

// Compile creates a compile error of the given kind
func Compile(kind Kind, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   kind,
		Detail: "compile module",
		Cause:  cause,
	}
}

// Instantiation creates a link error for a failed instantiation
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// MissingEntry creates a link error for an entry point the module does not export
func MissingEntry(name string) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindMissingEntry,
		Path:   name,
		Detail: fmt.Sprintf("entry point %q is not an exported function", name),
	}
}

// Trap creates an execution error for a guest trap
func Trap(entry string, cause error) *Error {
	return &Error{
		Phase: PhaseExecute,
		Kind:  KindTrap,
		Path:  entry,
		Cause: cause,
	}
}

// Exit creates an execution error for a non-zero WASI exit status
func Exit(entry string, code uint32) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindExit,
		Path:   entry,
		Detail: fmt.Sprintf("guest exited with status %d", code),
	}
}

// Timeout creates an execution error for an iteration that exceeded its deadline
func Timeout(cause error) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindTimeout,
		Detail: "iteration exceeded its deadline",
		Cause:  cause,
	}
}

// Canceled creates an error for a run interrupted during the given phase
func Canceled(phase Phase, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCanceled,
		Detail: "run canceled",
		Cause:  cause,
	}
}

// InvalidInput creates an invalid configuration error
func InvalidInput(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidInput,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// MissingImport represents a single unresolved or mismatched import
type MissingImport struct {
	Module string // e.g., "wasi_snapshot_preview1"
	Name   string // e.g., "fd_write"
	Reason string // empty when the name is not provided at all
}

// MissingImportsError is returned when linking fails due to missing or
// mismatched host functions
type MissingImportsError struct {
	Imports []MissingImport
}

// Kind returns KindSignatureMismatch when every entry is a mismatch, and
// KindMissingImport otherwise.
func (e *MissingImportsError) Kind() Kind {
	if len(e.Imports) == 0 {
		return KindMissingImport
	}
	for _, imp := range e.Imports {
		if imp.Reason == "" {
			return KindMissingImport
		}
	}
	return KindSignatureMismatch
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[linking] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "unresolved %d import(s):\n", len(e.Imports))

	// Group by module for cleaner output
	byModule := make(map[string][]MissingImport)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, imp := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(imp.Name)
			if imp.Reason != "" {
				b.WriteString(" (")
				b.WriteString(imp.Reason)
				b.WriteByte(')')
			}
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}

// Link wraps a MissingImportsError as a linking-phase *Error
func Link(missing *MissingImportsError) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   missing.Kind(),
		Detail: "resolve imports",
		Cause:  missing,
	}
}
