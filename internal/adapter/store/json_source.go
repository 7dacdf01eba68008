package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"quoterag/internal/domain"
	"quoterag/internal/port"
)

// JSONFile reads and writes the embeddings file: a JSON array of
// {"id", "quote", "embedding"} objects in corpus order.
type JSONFile struct {
	path string
}

// NewJSONFile returns a JSON-backed corpus at path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Describe returns the file path.
func (f *JSONFile) Describe() string {
	return "json:" + f.path
}

// Load reads all records. A missing file returns an error wrapping os.ErrNotExist.
func (f *JSONFile) Load(ctx context.Context) ([]domain.QuoteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embeddings file: %w", err)
	}
	var records []domain.QuoteRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse embeddings file: %w", err)
	}
	return records, nil
}

// Save writes records to a temporary file and renames it over the target,
// so readers never see a partially written file. The JSON format carries
// no build metadata; meta is ignored.
func (f *JSONFile) Save(ctx context.Context, records []domain.QuoteRecord, _ port.StoreMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []domain.QuoteRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode embeddings: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".embeddings-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write embeddings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write embeddings: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace embeddings file: %w", err)
	}
	return nil
}

// NewSource returns the read side of a store in the given format
// ("bolt" or "json").
func NewSource(format, path string) port.CorpusSource {
	if format == "bolt" {
		return NewBoltFile(path)
	}
	return NewJSONFile(path)
}
