//go:build !windows

package elevation

import (
	"context"
	"os"
	"os/exec"
)

// IsPrivileged reports whether the process runs as root.
func IsPrivileged() bool {
	return os.Geteuid() == 0
}

// platformRelauncher elevates through sudo, which prompts on the terminal
// and exits with the child's status once it has run.
type platformRelauncher struct{}

func (platformRelauncher) Relaunch(ctx context.Context, req Request) error {
	args := append([]string{"--", req.Executable}, req.Args...)
	cmd := exec.CommandContext(ctx, "sudo", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return classifyExit(cmd.Run())
}
