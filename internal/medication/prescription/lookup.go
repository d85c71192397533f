// Package prescription reads schedules owned by the prescription service.
// The ledger never writes prescriptions.
package prescription

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Lookup resolves prescriptions. Get returns errors.NotFound for unknown ids.
type Lookup interface {
	Get(ctx context.Context, id string) (*domain.Prescription, error)
	ListForResident(ctx context.Context, residentID string) ([]domain.Prescription, error)
}

// StaticLookup serves a fixed set of prescriptions for development and tests.
type StaticLookup struct {
	mu    sync.RWMutex
	byID  map[string]domain.Prescription
	order []string
}

// NewStaticLookup indexes the given prescriptions by id.
func NewStaticLookup(prescriptions ...domain.Prescription) *StaticLookup {
	l := &StaticLookup{byID: make(map[string]domain.Prescription)}
	for _, p := range prescriptions {
		l.Put(p)
	}
	return l
}

// LoadStaticLookup reads a YAML list of prescriptions:
//
//	prescriptions:
//	  - id: rx-1
//	    resident_id: res-1
//	    medication_name: Metformin
//	    active: true
//	    frequency: daily
//	    schedule:
//	      morning: {enabled: true, dose: 1, unit: tablet}
func LoadStaticLookup(path string) (*StaticLookup, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prescription file: %w", err)
	}

	var file struct {
		Prescriptions []domain.Prescription `yaml:"prescriptions"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse prescription file: %w", err)
	}
	return NewStaticLookup(file.Prescriptions...), nil
}

// Put adds or replaces a prescription.
func (l *StaticLookup) Put(p domain.Prescription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byID[p.ID]; !exists {
		l.order = append(l.order, p.ID)
	}
	l.byID[p.ID] = p
}

func (l *StaticLookup) Get(_ context.Context, id string) (*domain.Prescription, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.byID[id]
	if !ok {
		return nil, errors.NotFound("prescription")
	}
	return &p, nil
}

func (l *StaticLookup) ListForResident(_ context.Context, residentID string) ([]domain.Prescription, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Prescription, 0)
	for _, id := range l.order {
		if p := l.byID[id]; p.ResidentID == residentID {
			out = append(out, p)
		}
	}
	return out, nil
}

var (
	_ Lookup = (*StaticLookup)(nil)
	_ Lookup = (*Client)(nil)
)
