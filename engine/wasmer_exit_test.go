package engine

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWasmerExitCode(t *testing.T) {
	tests := []struct {
		msg    string
		code   uint32
		wantOK bool
	}{
		{"WASI exited with code: 3", 3, true},
		{"WASI exited with code: 0", 0, true},
		{"RuntimeError: WASI exited with code: 42\n    at _start", 42, true},
		{"WASI exited with code: 4294967295", 4294967295, true},
		{"WASI exited with code: 4294967296", 0, false},
		{"WASI exited with code: ", 0, false},
		{"unreachable", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			code, ok := wasmerExitCode(stderrors.New(tt.msg))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}
