// Package truststore looks up and installs the serving certificate in the
// system-wide trusted-root store, addressed by a friendly label.
package truststore

import (
	"context"
	"errors"

	"github.com/blockadesystems/serve/internal/model"
)

// ErrInstallFailed wraps any failure to add a record to the store.
var ErrInstallFailed = errors.New("truststore: install failed")

// Store is the trusted-root store. It is the source of truth for whether the
// serving certificate has been established.
type Store interface {
	// FindByLabel returns the record whose label matches label ignoring case,
	// or nil if none does.
	FindByLabel(ctx context.Context, label string) (*model.CertificateRecord, error)
	// Install adds record to the store. Usually requires elevated privileges.
	Install(ctx context.Context, record *model.CertificateRecord) error
}
