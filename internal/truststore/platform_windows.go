package truststore

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/blockadesystems/serve/internal/launch"
)

// NewPlatform returns the system trusted-root store: bundles under
// %ProgramData%\serve\trust, anchors added to the LocalMachine Root store.
func NewPlatform(password string, runner launch.Runner, logger *zap.Logger) *DirStore {
	programData := os.Getenv("ProgramData")
	if programData == "" {
		programData = `C:\ProgramData`
	}
	dir := filepath.Join(programData, "serve", "trust")
	hook := func(ctx context.Context, anchorPath string) error {
		return runner.Run(ctx, "certutil", "-addstore", "-f", "Root", anchorPath)
	}
	return NewDirStore(dir, dir, password, hook, logger)
}
