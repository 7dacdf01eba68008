package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"quoterag/internal/domain"
	"quoterag/internal/port"
)

// ErrCorrupt marks a source whose records cannot form a usable store.
var ErrCorrupt = errors.New("corrupt quote store")

// Snapshot is an immutable, fully loaded view of the corpus.
// A snapshot is either ready (non-empty records) or unavailable with a reason.
type Snapshot struct {
	records   []domain.QuoteRecord
	dimension int
	source    string
	reason    string
	loadedAt  time.Time
}

// Unavailable returns a snapshot that holds no records.
func Unavailable(source, reason string) *Snapshot {
	return &Snapshot{source: source, reason: reason, loadedAt: time.Now()}
}

// NewSnapshot validates records and wraps them in a snapshot.
// Records are copied so later changes by the caller are not observed.
func NewSnapshot(source string, records []domain.QuoteRecord) (*Snapshot, error) {
	dim := 0
	seen := make(map[string]struct{}, len(records))
	copied := make([]domain.QuoteRecord, len(records))
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: record %d has no id", ErrCorrupt, i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrCorrupt, r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.Text == "" {
			return nil, fmt.Errorf("%w: record %q has empty text", ErrCorrupt, r.ID)
		}
		if len(r.Embedding) == 0 {
			return nil, fmt.Errorf("%w: record %q has no embedding", ErrCorrupt, r.ID)
		}
		if i == 0 {
			dim = len(r.Embedding)
		} else if len(r.Embedding) != dim {
			return nil, fmt.Errorf("%w: record %q has %d dimensions, expected %d", ErrCorrupt, r.ID, len(r.Embedding), dim)
		}
		emb := make([]float64, len(r.Embedding))
		copy(emb, r.Embedding)
		copied[i] = domain.QuoteRecord{ID: r.ID, Text: r.Text, Embedding: emb}
	}
	return &Snapshot{records: copied, dimension: dim, source: source, loadedAt: time.Now()}, nil
}

// LoadSnapshot reads src into a snapshot. It never fails: a missing or
// unreadable source yields an unavailable snapshot carrying the reason.
func LoadSnapshot(ctx context.Context, src port.CorpusSource) *Snapshot {
	name := src.Describe()
	records, err := src.Load(ctx)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Unavailable(name, "store not found, run prepare first")
		}
		return Unavailable(name, err.Error())
	}
	snap, err := NewSnapshot(name, records)
	if err != nil {
		return Unavailable(name, err.Error())
	}
	return snap
}

// IsReady reports whether the snapshot loaded and holds at least one record.
func (s *Snapshot) IsReady() bool {
	return s != nil && len(s.records) > 0
}

// Count returns the number of records.
func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Dimension returns the embedding dimension shared by all records.
func (s *Snapshot) Dimension() int {
	if s == nil {
		return 0
	}
	return s.dimension
}

// Records returns the records in store order. The slice must not be modified.
func (s *Snapshot) Records() []domain.QuoteRecord {
	if s == nil {
		return nil
	}
	return s.records
}

// Info summarizes the snapshot for readiness reporting.
func (s *Snapshot) Info() domain.StoreInfo {
	if s == nil {
		return domain.StoreInfo{Reason: "store not loaded"}
	}
	info := domain.StoreInfo{
		Ready:     s.IsReady(),
		Count:     len(s.records),
		Dimension: s.dimension,
		Source:    s.source,
		Reason:    s.reason,
	}
	if !info.Ready && info.Reason == "" {
		info.Reason = "store is empty"
	}
	return info
}

// VectorStore holds the current snapshot and swaps it atomically on reload.
// Readers always see either the old or the new snapshot in full.
type VectorStore struct {
	src     port.CorpusSource
	current atomic.Pointer[Snapshot]
	logger  *zap.Logger
}

// NewVectorStore creates a store backed by src and performs the initial load.
func NewVectorStore(ctx context.Context, src port.CorpusSource, logger *zap.Logger) *VectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &VectorStore{src: src, logger: logger}
	snap := LoadSnapshot(ctx, src)
	s.current.Store(snap)
	s.logLoad(snap)
	return s
}

// Snapshot returns the snapshot currently in use.
func (s *VectorStore) Snapshot() *Snapshot {
	return s.current.Load()
}

// IsReady reports whether the current snapshot is usable.
func (s *VectorStore) IsReady() bool {
	return s.Snapshot().IsReady()
}

// Count returns the number of records in the current snapshot.
func (s *VectorStore) Count() int {
	return s.Snapshot().Count()
}

// Info describes the current snapshot.
func (s *VectorStore) Info() domain.StoreInfo {
	return s.Snapshot().Info()
}

// Reload reads the source again. A ready snapshot replaces the current one.
// When the new load is unusable and a ready snapshot is already serving,
// the old snapshot stays in place and an error is returned.
func (s *VectorStore) Reload(ctx context.Context) (domain.StoreInfo, error) {
	snap := LoadSnapshot(ctx, s.src)
	old := s.current.Load()
	if !snap.IsReady() && old.IsReady() {
		s.logger.Warn("reload failed, keeping previous snapshot",
			zap.String("source", snap.source),
			zap.String("reason", snap.Info().Reason),
			zap.Int("count", old.Count()))
		return old.Info(), fmt.Errorf("reload failed: %s", snap.Info().Reason)
	}
	s.current.Store(snap)
	s.logLoad(snap)
	return snap.Info(), nil
}

func (s *VectorStore) logLoad(snap *Snapshot) {
	info := snap.Info()
	if info.Ready {
		s.logger.Info("quote store loaded",
			zap.String("source", info.Source),
			zap.Int("count", info.Count),
			zap.Int("dimension", info.Dimension))
		return
	}
	s.logger.Warn("quote store unavailable",
		zap.String("source", info.Source),
		zap.String("reason", info.Reason))
}
