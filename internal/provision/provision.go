// Package provision produces the certificate a run serves with: from the
// trusted-root store when it is already there, by generating and installing
// one (relaunching elevated when needed), or from the on-disk cache.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/blockadesystems/serve/internal/ca"
	"github.com/blockadesystems/serve/internal/config"
	"github.com/blockadesystems/serve/internal/elevation"
	"github.com/blockadesystems/serve/internal/model"
	"github.com/blockadesystems/serve/internal/truststore"
)

var (
	// ErrCacheDelete means a stale cache file could not be removed.
	ErrCacheDelete = errors.New("provision: failed to delete certificate file on disk")
	// ErrElevationFailed means elevated privileges could not be obtained.
	ErrElevationFailed = errors.New("provision: failed to obtain administrator privileges")
	// ErrCertificateInstallFailed means the elevated child finished but the
	// store still has no certificate.
	ErrCertificateInstallFailed = errors.New("provision: certificate installation failed or was canceled")
	// ErrGenerate means key or certificate generation failed.
	ErrGenerate = errors.New("provision: failed to generate certificate")
	// ErrCertificateUnavailable means no path produced a certificate.
	ErrCertificateUnavailable = errors.New("provision: failed to load certificate")
	// ErrStoreInstallFailed is logged, never returned: provisioning carries
	// on through the disk cache.
	ErrStoreInstallFailed = errors.New("provision: failed to install certificate into trusted root store")
)

// Generator creates a new certificate record.
type Generator interface {
	Generate(subjectName, password, label string) (*model.CertificateRecord, error)
}

// Cache is the on-disk certificate cache.
type Cache interface {
	Path() string
	Exists() bool
	Delete() error
	Save(record *model.CertificateRecord) error
	Load(label string) (*model.CertificateRecord, error)
}

// Result is the outcome of a provisioning attempt. Exit is set when this
// process is the elevated child and must stop without serving.
type Result struct {
	Record *model.CertificateRecord
	Exit   bool
}

// Provisioner orchestrates the trust store, certificate factory, elevation
// handshake and disk cache.
type Provisioner struct {
	store       truststore.Store
	generator   Generator
	cache       Cache
	coordinator *elevation.Coordinator
	executable  func() (string, error)
	now         func() time.Time

	subjectName string
	label       string
	password    string

	logger *zap.Logger
}

// New returns a Provisioner for the localhost certificate.
func New(store truststore.Store, generator Generator, cache Cache, coordinator *elevation.Coordinator, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		store:       store,
		generator:   generator,
		cache:       cache,
		coordinator: coordinator,
		executable:  os.Executable,
		now:         time.Now,
		subjectName: ca.SubjectName,
		label:       ca.Label,
		password:    ca.BundlePassword,
		logger:      logger.With(zap.String("package", "provision")),
	}
}

// Provision returns the certificate to serve with. A nil Record with a nil
// error means TLS was not requested.
func (p *Provisioner) Provision(ctx context.Context, cfg *config.ServerConfig) (*Result, error) {
	if !cfg.UseHTTPS {
		return &Result{}, nil
	}

	record, err := p.store.FindByLabel(ctx, p.label)
	if err != nil {
		return nil, fmt.Errorf("%w: store lookup: %w", ErrCertificateUnavailable, err)
	}
	if record != nil {
		p.logger.Info("certificate found in the certificate store", zap.String("label", record.Label))
		p.warnIfExpired(record)
	} else if err := p.cache.Delete(); err != nil {
		// The store is the source of truth: a cache file without a store
		// entry is stale.
		return nil, fmt.Errorf("%w: %w", ErrCacheDelete, err)
	}

	var generated *model.CertificateRecord
	switch action := p.coordinator.Next(cfg.Elevated, record != nil); action {
	case elevation.ActionUseStored:
		return &Result{Record: record}, nil
	case elevation.ActionExitElevated:
		p.logger.Info("certificate already installed, nothing to do")
		return &Result{Exit: true}, nil
	case elevation.ActionFail:
		return nil, fmt.Errorf("%w: still not privileged after relaunch", ErrElevationFailed)
	case elevation.ActionProvisionAndExit:
		if _, err := p.generateAndInstall(ctx); err != nil {
			return nil, err
		}
		return &Result{Exit: true}, nil
	case elevation.ActionRelaunch:
		if record, err = p.relaunch(ctx, cfg); err != nil {
			return nil, err
		}
	case elevation.ActionProvisionAndServe:
		if record, generated, err = p.provisionAndServe(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("provision: unexpected elevation action %s", action)
	}

	if record == nil && p.cache.Exists() {
		record, err = p.cache.Load(p.label)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCertificateUnavailable, err)
		}
		if record != nil {
			p.logger.Info("loaded certificate from disk cache", zap.String("path", p.cache.Path()))
			p.warnIfExpired(record)
		}
	}
	if record == nil && generated != nil {
		p.logger.Warn("certificate was neither found in the store nor cached on disk, serving the one just generated")
		record = generated
	}
	if record == nil {
		return nil, ErrCertificateUnavailable
	}
	return &Result{Record: record}, nil
}

// relaunch hands provisioning to an elevated copy of this executable and
// blocks until it exits, then re-reads the store.
func (p *Provisioner) relaunch(ctx context.Context, cfg *config.ServerConfig) (*model.CertificateRecord, error) {
	exe, err := p.executable()
	if err != nil {
		return nil, fmt.Errorf("%w: locate executable: %w", ErrElevationFailed, err)
	}
	req := elevation.NewRequest(exe, elevation.RequestOptions{
		RootFolder: cfg.RootFolder,
		Port:       cfg.Port,
		CertCache:  p.cache.Path(),
	})
	if err := p.coordinator.Relaunch(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrElevationFailed, err)
	}

	record, err := p.store.FindByLabel(ctx, p.label)
	if err != nil {
		return nil, fmt.Errorf("%w: store lookup: %w", ErrCertificateInstallFailed, err)
	}
	if record == nil {
		return nil, ErrCertificateInstallFailed
	}
	return record, nil
}

// provisionAndServe installs a certificate from an already-elevated session
// and reads it back from the store. A store that does not return it by label
// leaves record nil so the caller tries the disk cache; generated is the
// certificate created here either way.
func (p *Provisioner) provisionAndServe(ctx context.Context) (record, generated *model.CertificateRecord, err error) {
	if generated, err = p.generateAndInstall(ctx); err != nil {
		return nil, nil, err
	}
	record, err = p.store.FindByLabel(ctx, p.label)
	if err != nil {
		p.logger.Warn("store lookup failed after install", zap.Error(err))
		return nil, generated, nil
	}
	if record == nil {
		p.logger.Warn("installed certificate not found by label, falling back to disk cache",
			zap.String("label", p.label))
	}
	return record, generated, nil
}

// warnIfExpired reports a record outside its validity window. Certificates
// are not renewed; removing it from the store makes the next run issue one.
func (p *Provisioner) warnIfExpired(record *model.CertificateRecord) {
	if !record.ValidAt(p.now()) {
		p.logger.Warn("certificate is outside its validity window",
			zap.Time("not_before", record.NotBefore),
			zap.Time("not_after", record.NotAfter))
	}
}

// generateAndInstall creates a certificate, writes it to the disk cache and
// installs it. Cache and store failures are reported and tolerated.
func (p *Provisioner) generateAndInstall(ctx context.Context) (*model.CertificateRecord, error) {
	record, err := p.generator.Generate(p.subjectName, p.password, p.label)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
	}
	if err := p.cache.Save(record); err != nil {
		p.logger.Warn("failed to cache certificate on disk", zap.Error(err))
	}
	if err := p.store.Install(ctx, record); err != nil {
		p.logger.Warn("certificate installation failed",
			zap.Error(fmt.Errorf("%w: %w", ErrStoreInstallFailed, err)))
		return record, nil
	}
	p.logger.Info("certificate installed into the trusted root store", zap.String("label", record.Label))
	return record, nil
}
