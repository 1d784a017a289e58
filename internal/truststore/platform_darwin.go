package truststore

import (
	"context"

	"go.uber.org/zap"

	"github.com/blockadesystems/serve/internal/launch"
)

const platformStoreDir = "/Library/Application Support/serve/trust"

// NewPlatform returns the system trusted-root store: bundles under
// /Library/Application Support/serve/trust, anchors added to the System
// keychain as trusted roots.
func NewPlatform(password string, runner launch.Runner, logger *zap.Logger) *DirStore {
	hook := func(ctx context.Context, anchorPath string) error {
		return runner.Run(ctx, "security", "add-trusted-cert", "-d", "-r", "trustRoot",
			"-k", "/Library/Keychains/System.keychain", anchorPath)
	}
	return NewDirStore(platformStoreDir, platformStoreDir, password, hook, logger)
}
