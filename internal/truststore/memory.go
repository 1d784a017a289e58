package truststore

import (
	"context"
	"strings"
	"sync"

	"github.com/blockadesystems/serve/internal/model"
)

// Memory is an in-process Store. It records how often it is used so callers
// can assert that a code path never touched the store.
type Memory struct {
	mu       sync.Mutex
	records  []*model.CertificateRecord
	finds    int
	installs int

	// InstallErr, when set, is returned by Install instead of storing the record.
	InstallErr error
	// HideInstalled makes FindByLabel miss records added through Install,
	// modelling a store whose label lookup is unreliable.
	HideInstalled bool
	hidden        map[*model.CertificateRecord]bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns a store pre-populated with records.
func NewMemory(records ...*model.CertificateRecord) *Memory {
	return &Memory{records: records}
}

func (m *Memory) FindByLabel(_ context.Context, label string) (*model.CertificateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	for _, r := range m.records {
		if m.hidden[r] {
			continue
		}
		if strings.EqualFold(r.Label, label) {
			return r, nil
		}
	}
	return nil, nil
}

func (m *Memory) Install(_ context.Context, record *model.CertificateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installs++
	if m.InstallErr != nil {
		return m.InstallErr
	}
	m.records = append(m.records, record)
	if m.HideInstalled {
		if m.hidden == nil {
			m.hidden = make(map[*model.CertificateRecord]bool)
		}
		m.hidden[record] = true
	}
	return nil
}

// Finds returns the number of FindByLabel calls.
func (m *Memory) Finds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finds
}

// Installs returns the number of Install calls.
func (m *Memory) Installs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.installs
}
