package memstore

import (
	"context"
	"sync"

	"quoterag/internal/domain"
	"quoterag/internal/port"
)

// MemoryStore keeps a prepared corpus in memory. It serves as both
// source and sink where no file is involved, as in the engine and server tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []domain.QuoteRecord
	meta    port.StoreMeta
	hasMeta bool
}

func NewMemoryStore(records ...domain.QuoteRecord) *MemoryStore {
	s := &MemoryStore{}
	s.records = cloneRecords(records)
	return s
}

func (s *MemoryStore) Describe() string {
	return "memory"
}

func (s *MemoryStore) Load(ctx context.Context) ([]domain.QuoteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.records), nil
}

func (s *MemoryStore) Save(ctx context.Context, records []domain.QuoteRecord, meta port.StoreMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = cloneRecords(records)
	meta.Count = len(records)
	s.meta = meta
	s.hasMeta = true
	return nil
}

func (s *MemoryStore) Meta() (port.StoreMeta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta, s.hasMeta, nil
}

func cloneRecords(records []domain.QuoteRecord) []domain.QuoteRecord {
	out := make([]domain.QuoteRecord, len(records))
	for i, r := range records {
		out[i] = domain.QuoteRecord{ID: r.ID, Text: r.Text, Embedding: append([]float64(nil), r.Embedding...)}
	}
	return out
}
