package truststore

import (
	"context"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/blockadesystems/serve/internal/ca"
	"github.com/blockadesystems/serve/internal/model"
	"github.com/blockadesystems/serve/internal/storage"
)

// On-disk layout:
//
//   <dir>/
//     <slug>.pem       (0600) PKCS12 block with a "Label" header
//   <anchorDir>/
//     <slug>.crt       (0644) plain certificate picked up by the OS
//
// <slug> is the label lowercased with anything outside [a-z0-9.-] replaced
// by '-'. <dir> is listable by everyone so unprivileged runs can look
// entries up; each entry holds a key, so it stays private to its owner,
// which is the user that ran sudo when installed from an elevated child.

const (
	bundleBlockType = "PKCS12"
	labelHeader     = "Label"
	entryExt        = ".pem"
	anchorExt       = ".crt"

	dirPerms    = 0755
	entryPerms  = 0600
	anchorPerms = 0644
)

// AnchorHook makes the OS pick up a certificate written to anchorPath.
type AnchorHook func(ctx context.Context, anchorPath string) error

// DirStore is a Store backed by a private directory of label-keyed bundles and
// an optional OS anchor directory.
type DirStore struct {
	dir       string
	anchorDir string
	password  string
	hook      AnchorHook
	logger    *zap.Logger
}

var _ Store = (*DirStore)(nil)

// NewDirStore returns a store rooted at dir. When anchorDir is non-empty every
// installed certificate is also written there and hook, if set, is run on it.
func NewDirStore(dir, anchorDir, password string, hook AnchorHook, logger *zap.Logger) *DirStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirStore{
		dir:       dir,
		anchorDir: anchorDir,
		password:  password,
		hook:      hook,
		logger:    logger.With(zap.String("package", "truststore")),
	}
}

// FindByLabel scans every entry and returns the first whose label header
// matches label case-insensitively.
func (s *DirStore) FindByLabel(ctx context.Context, label string) (*model.CertificateRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("truststore: failed to read store %s: %w", s.dir, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), entryExt) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		block, err := readEntry(path)
		if err != nil {
			s.logger.Warn("skipping unreadable store entry", zap.String("path", path), zap.Error(err))
			continue
		}
		if !strings.EqualFold(block.Headers[labelHeader], label) {
			continue
		}
		record, err := ca.RecordFromBundle(block.Bytes, s.password, block.Headers[labelHeader])
		if err != nil {
			return nil, fmt.Errorf("truststore: entry %s: %w", path, err)
		}
		return record, nil
	}
	return nil, nil
}

// Install writes the record's bundle under its label, publishes the bare
// certificate to the anchor directory and runs the anchor hook.
func (s *DirStore) Install(ctx context.Context, record *model.CertificateRecord) error {
	if record == nil || record.Certificate == nil || len(record.Bundle) == 0 {
		return fmt.Errorf("%w: record has no certificate or bundle", ErrInstallFailed)
	}
	slug := slugify(record.Label)

	if err := os.MkdirAll(s.dir, dirPerms); err != nil {
		return fmt.Errorf("%w: create store directory: %w", ErrInstallFailed, err)
	}
	entry := pem.EncodeToMemory(&pem.Block{
		Type:    bundleBlockType,
		Headers: map[string]string{labelHeader: record.Label},
		Bytes:   record.Bundle,
	})
	entryPath := filepath.Join(s.dir, slug+entryExt)
	if err := os.WriteFile(entryPath, entry, entryPerms); err != nil {
		return fmt.Errorf("%w: write store entry: %w", ErrInstallFailed, err)
	}
	if err := storage.ChownToInvoker(entryPath); err != nil {
		s.logger.Warn("failed to hand store entry to invoking user", zap.String("path", entryPath), zap.Error(err))
	}

	if s.anchorDir == "" {
		s.logger.Info("installed certificate", zap.String("label", record.Label), zap.String("dir", s.dir))
		return nil
	}
	if err := os.MkdirAll(s.anchorDir, 0755); err != nil {
		return fmt.Errorf("%w: create anchor directory: %w", ErrInstallFailed, err)
	}
	anchorPath := filepath.Join(s.anchorDir, slug+anchorExt)
	anchor := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: record.Certificate.Raw})
	if err := os.WriteFile(anchorPath, anchor, anchorPerms); err != nil {
		return fmt.Errorf("%w: write anchor: %w", ErrInstallFailed, err)
	}
	if s.hook != nil {
		if err := s.hook(ctx, anchorPath); err != nil {
			return fmt.Errorf("%w: %w", ErrInstallFailed, err)
		}
	}

	s.logger.Info("installed certificate into trusted root store",
		zap.String("label", record.Label),
		zap.String("anchor", anchorPath))
	return nil
}

func readEntry(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if block.Type != bundleBlockType {
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
	return block, nil
}

func slugify(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
