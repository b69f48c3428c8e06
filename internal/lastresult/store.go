// Package lastresult keeps the most recent successful analysis in a single
// slot so a returning user can reopen it.
package lastresult

import (
	"context"
	"sync"
	"time"

	"medlens/internal/models"
)

// Key is the slot name shared by every backend.
const Key = "medlens:lastResult"

// Record is the stored payload. Timestamp is Unix milliseconds.
type Record struct {
	Data         *models.AnalysisResult      `json:"data"`
	Interactions []models.InteractionWarning `json:"interactions"`
	Timestamp    int64                       `json:"timestamp"`
}

// Outcome converts the record back into a pipeline outcome.
func (r *Record) Outcome() *models.Outcome {
	return models.ResultOutcome(r.Data, r.Interactions)
}

// Store is a single-slot, last-write-wins store. Load returns nil, nil when
// the slot is empty.
type Store interface {
	Save(ctx context.Context, result *models.AnalysisResult, interactions []models.InteractionWarning) error
	Load(ctx context.Context) (*Record, error)
	Clear(ctx context.Context) error
}

var now = time.Now

func newRecord(result *models.AnalysisResult, interactions []models.InteractionWarning) *Record {
	if interactions == nil {
		interactions = []models.InteractionWarning{}
	}
	return &Record{Data: result, Interactions: interactions, Timestamp: now().UnixMilli()}
}

// MemoryStore keeps the slot in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	record *Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(ctx context.Context, result *models.AnalysisResult, interactions []models.InteractionWarning) error {
	record := newRecord(result, interactions)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = record
	return nil
}

func (m *MemoryStore) Load(ctx context.Context) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return nil, nil
	}
	copied := *m.record
	return &copied, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = nil
	return nil
}
