// Package launch starts operating system processes: helper commands that must
// finish before the caller continues, and fire-and-forget browser tabs.
package launch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Runner runs a command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Exec runs commands with os/exec.
type Exec struct{}

var _ Runner = Exec{}

// Run starts name with args and waits for it to exit. Combined output is
// included in the error when the command fails.
func (Exec) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(out.String()); msg != "" {
			return fmt.Errorf("launch: %s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("launch: %s: %w", name, err)
	}
	return nil
}

// browserCommand returns the platform command that opens url in the default browser.
func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default: // linux, freebsd, etc
		return "xdg-open", []string{url}
	}
}

// OpenBrowser opens url in the user's default browser without waiting for it.
func OpenBrowser(url string) error {
	name, args := browserCommand(runtime.GOOS, url)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch: failed to open browser: %w", err)
	}
	// Reap the child so it does not linger as a zombie.
	go cmd.Wait()
	return nil
}
