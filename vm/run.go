package vm

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// RunResult reports how execution ended, for the driver to translate into
// a process exit code per §6.
type RunResult struct {
	// ExitCode is the process exit status: 0 on normal end-of-code, the
	// EXIT opcode's operand, or -1 on any fatal error.
	ExitCode int
	// Err is non-nil on ABORT, PANIC, or a VM-fatal condition. A plain
	// EXIT is not an error here, only a carried exit code.
	Err error
}

// Run drives a VM's fetch-decode-execute loop to completion: end-of-code,
// EXIT, ABORT, PANIC, or a fatal VM error. It never panics; Step's errors
// are the sole control-flow signal, matching the single-threaded,
// synchronous execution model in §5.
func Run(vm *VM) RunResult {
	defer vm.flush()
	for vm.pc < len(vm.code) {
		err := vm.Step()
		if err == nil {
			continue
		}

		switch e := err.(type) {
		case *ExitError:
			log.Debug().Int64("code", e.Code).Msg("exit")
			return RunResult{ExitCode: int(e.Code)}
		case *PanicError:
			log.Error().Str("message", e.Message).Msg("panic")
			fmt.Fprintln(vm.err, "panic:", e.Message)
			vm.dump()
			return RunResult{ExitCode: -1, Err: e}
		default:
			log.Error().Err(err).Msg("vm fatal error")
			fmt.Fprintln(vm.err, "fatal:", err)
			vm.dump()
			return RunResult{ExitCode: -1, Err: err}
		}
	}
	return RunResult{ExitCode: 0}
}
