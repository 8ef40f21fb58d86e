package engine

import (
	"strconv"
	"strings"
)

// wasmerExitCode extracts the status of a WASI proc_exit, which wasmer
// surfaces as a runtime error message.
func wasmerExitCode(err error) (uint32, bool) {
	const marker = "exited with code: "
	msg := err.Error()
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return 0, false
	}
	digits := msg[idx+len(marker):]
	if end := strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }); end >= 0 {
		digits = digits[:end]
	}
	code, parseErr := strconv.ParseUint(digits, 10, 32)
	if parseErr != nil {
		return 0, false
	}
	return uint32(code), true
}
