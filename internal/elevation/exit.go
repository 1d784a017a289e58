package elevation

import (
	"errors"
	"fmt"
	"os/exec"
)

// launcherFailureStatus is the status sudo and powershell exit with when they
// cannot run the child themselves: a declined or failed authentication, or
// a refused UAC prompt.
const launcherFailureStatus = 1

// ChildExitError means the elevated child ran and exited unsuccessfully.
// The relaunch itself worked, so whatever the child managed to install is
// still worth looking up.
type ChildExitError struct {
	Code int
}

func (e *ChildExitError) Error() string {
	return fmt.Sprintf("elevation: elevated child exited with status %d", e.Code)
}

// classifyExit turns a launcher error carrying the child's exit status into
// a *ChildExitError. Start failures and the launcher's own failure status
// are returned unchanged.
func classifyExit(err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	code := exitErr.ExitCode()
	if code <= 0 || code == launcherFailureStatus {
		return err
	}
	return &ChildExitError{Code: code}
}
