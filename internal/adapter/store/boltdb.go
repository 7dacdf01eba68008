package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"quoterag/internal/domain"
	"quoterag/internal/port"
)

var (
	bucketQuotes = []byte("quotes")
	bucketMeta   = []byte("meta")
	keyStoreMeta = []byte("store_meta")
)

// BoltStore persists the prepared corpus in a bbolt database.
// Quotes are keyed by an 8-byte big-endian sequence so iteration
// returns them in the order they were saved.
type BoltStore struct {
	db   *bbolt.DB
	path string
}

type storedQuote struct {
	ID     string    `json:"id"`
	Text   string    `json:"q"`
	Vector []float64 `json:"v"`
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketQuotes, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: path}, nil
}

// OpenBoltSource opens an existing database for reading. A missing file
// returns an error wrapping os.ErrNotExist instead of creating one.
func OpenBoltSource(path string) (*BoltStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	return NewBoltStore(path)
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

// Describe returns the database path.
func (s *BoltStore) Describe() string {
	return "bolt:" + s.path
}

func seqKey(i uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, i)
	return key
}

// Load reads all quotes in saved order.
func (s *BoltStore) Load(ctx context.Context) ([]domain.QuoteRecord, error) {
	var records []domain.QuoteRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQuotes)
		if b == nil {
			return nil
		}
		records = make([]domain.QuoteRecord, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var sq storedQuote
			if err := json.Unmarshal(v, &sq); err != nil {
				return fmt.Errorf("failed to decode quote at key %x: %w", k, err)
			}
			records = append(records, domain.QuoteRecord{ID: sq.ID, Text: sq.Text, Embedding: sq.Vector})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Save replaces all stored quotes with records and records meta,
// in a single transaction.
func (s *BoltStore) Save(ctx context.Context, records []domain.QuoteRecord, meta port.StoreMeta) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketQuotes); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("failed to clear quotes: %w", err)
		}
		b, err := tx.CreateBucket(bucketQuotes)
		if err != nil {
			return fmt.Errorf("failed to create quotes bucket: %w", err)
		}

		for i, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := json.Marshal(storedQuote{ID: r.ID, Text: r.Text, Vector: r.Embedding})
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(uint64(i)), data); err != nil {
				return err
			}
		}

		meta.Count = len(records)
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyStoreMeta, data)
	})
}

// Meta returns the metadata recorded by the last Save.
func (s *BoltStore) Meta() (port.StoreMeta, bool, error) {
	var meta port.StoreMeta
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyStoreMeta)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &meta)
	})
	return meta, found, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// BoltFile is a CorpusSource that opens the database read-only for the
// duration of each Load, so a serving process never holds the write lock
// that prepare needs.
type BoltFile struct {
	path string
}

func NewBoltFile(path string) *BoltFile {
	return &BoltFile{path: path}
}

func (f *BoltFile) Describe() string {
	return "bolt:" + f.path
}

func (f *BoltFile) Load(ctx context.Context) ([]domain.QuoteRecord, error) {
	if _, err := os.Stat(f.path); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(f.path, 0600, &bbolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	defer db.Close()
	return (&BoltStore{db: db, path: f.path}).Load(ctx)
}
