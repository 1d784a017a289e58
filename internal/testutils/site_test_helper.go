package testutils

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blockadesystems/serve/internal/ca"
	"github.com/blockadesystems/serve/internal/config"
	"github.com/blockadesystems/serve/internal/model"
)

var (
	certOnce   sync.Once
	certRecord *model.CertificateRecord
	certErr    error
)

// NewSite writes files (slash separated path -> contents) under a fresh
// temporary directory and returns its path.
func NewSite(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return root
}

// NewServerConfig returns a configuration serving root on an ephemeral port.
func NewServerConfig(t *testing.T, root string) *config.ServerConfig {
	t.Helper()
	return &config.ServerConfig{
		RootFolder:  root,
		Port:        0,
		IdleTimeout: time.Minute,
		NoBrowser:   true,
	}
}

// Certificate returns a localhost certificate shared by every test in the
// binary; RSA key generation is too slow to repeat per test.
func Certificate(t *testing.T) *model.CertificateRecord {
	t.Helper()
	certOnce.Do(func() {
		certRecord, certErr = ca.NewFactory(nil).Generate(ca.SubjectName, ca.BundlePassword, ca.Label)
	})
	if certErr != nil {
		t.Fatalf("Failed to generate test certificate: %v", certErr)
	}
	return certRecord
}
