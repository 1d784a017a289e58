package elevation

import (
	"context"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

// IsPrivileged reports whether the process token is elevated.
func IsPrivileged() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// platformRelauncher elevates through the UAC "runas" verb, waits for the
// child with Start-Process -Wait and exits with the child's status.
type platformRelauncher struct{}

func (platformRelauncher) Relaunch(ctx context.Context, req Request) error {
	escaped := make([]string, len(req.Args))
	for i, a := range req.Args {
		escaped[i] = syscall.EscapeArg(a)
	}
	script := "$p = Start-Process -Verb RunAs -Wait -PassThru -FilePath " + powershellQuote(req.Executable) +
		" -ArgumentList " + powershellQuote(strings.Join(escaped, " ")) +
		"; exit $p.ExitCode"
	cmd := exec.CommandContext(ctx, "powershell.exe", "-NoProfile", "-NonInteractive", "-Command", script)
	return classifyExit(cmd.Run())
}
