//go:build !linux && !darwin && !windows

package truststore

import (
	"go.uber.org/zap"

	"github.com/blockadesystems/serve/internal/launch"
)

const platformStoreDir = "/var/db/serve/trust"

// NewPlatform returns a store without an OS anchor: browsers on these
// platforms must be pointed at the certificate manually.
func NewPlatform(password string, _ launch.Runner, logger *zap.Logger) *DirStore {
	return NewDirStore(platformStoreDir, "", password, nil, logger)
}
