package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/blockadesystems/serve/internal/ca"
	"github.com/blockadesystems/serve/internal/model"
)

const (
	cacheDirName  = "serve"
	cacheFileName = "localhost.pfx"

	cacheDirPerms  = 0700
	cacheFilePerms = 0600
)

// DefaultCachePath returns the user-scoped location of the cached bundle,
// e.g. ~/.cache/serve/localhost.pfx or %LocalAppData%\serve\localhost.pfx.
func DefaultCachePath() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("storage: failed to resolve user cache directory: %w", err)
	}
	return filepath.Join(base, cacheDirName, cacheFileName), nil
}

// DiskCache keeps one password-protected certificate bundle at a fixed path.
type DiskCache struct {
	path     string
	password string
	logger   *zap.Logger
}

// NewDiskCache returns a cache for the bundle at path.
func NewDiskCache(path, password string, logger *zap.Logger) *DiskCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiskCache{
		path:     path,
		password: password,
		logger:   logger.With(zap.String("package", "storage")),
	}
}

// Path returns the bundle location.
func (c *DiskCache) Path() string {
	return c.path
}

// Exists reports whether a bundle file is present.
func (c *DiskCache) Exists() bool {
	info, err := os.Stat(c.path)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes the bundle. A missing file is not an error.
func (c *DiskCache) Delete() error {
	err := os.Remove(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: failed to delete certificate cache %s: %w", c.path, err)
	}
	c.logger.Info("deleted existing certificate file on disk", zap.String("path", c.path))
	return nil
}

// Save writes the record's bundle, creating parent directories as needed.
func (c *DiskCache) Save(record *model.CertificateRecord) error {
	if record == nil || len(record.Bundle) == 0 {
		return errors.New("storage: record has no bundle to cache")
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, cacheDirPerms); err != nil {
		return fmt.Errorf("storage: failed to create cache directory %s: %w", dir, err)
	}
	if err := os.WriteFile(c.path, record.Bundle, cacheFilePerms); err != nil {
		return fmt.Errorf("storage: failed to write certificate cache %s: %w", c.path, err)
	}
	// The elevated child writes into the invoking user's profile; hand the
	// files back so the unprivileged parent can read them.
	for _, p := range []string{dir, c.path} {
		if err := ChownToInvoker(p); err != nil {
			c.logger.Warn("failed to hand cache file to invoking user", zap.String("path", p), zap.Error(err))
		}
	}
	c.logger.Info("cached certificate on disk", zap.String("path", c.path))
	return nil
}

// Load imports the cached bundle and tags it with label. It returns nil, nil
// when no bundle is cached.
func (c *DiskCache) Load(label string) (*model.CertificateRecord, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: failed to read certificate cache %s: %w", c.path, err)
	}
	record, err := ca.RecordFromBundle(data, c.password, label)
	if err != nil {
		return nil, fmt.Errorf("storage: certificate cache %s: %w", c.path, err)
	}
	return record, nil
}
