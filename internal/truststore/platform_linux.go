package truststore

import (
	"context"

	"go.uber.org/zap"

	"github.com/blockadesystems/serve/internal/launch"
)

const (
	platformStoreDir  = "/var/lib/serve/trust"
	platformAnchorDir = "/usr/local/share/ca-certificates"
)

// NewPlatform returns the system trusted-root store: bundles under
// /var/lib/serve/trust and anchors picked up by update-ca-certificates.
func NewPlatform(password string, runner launch.Runner, logger *zap.Logger) *DirStore {
	hook := func(ctx context.Context, _ string) error {
		return runner.Run(ctx, "update-ca-certificates")
	}
	return NewDirStore(platformStoreDir, platformAnchorDir, password, hook, logger)
}
