package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"quoterag/internal/domain"
)

// CSVReader reads quotes from CSV files laid out as id,quote[,...].
// Rows with fewer than two columns or a blank quote are skipped.
// A blank id is replaced by the row's line number.
type CSVReader struct {
	header bool
}

// NewCSVReader returns a reader; when header is true the first row is skipped.
func NewCSVReader(header bool) *CSVReader {
	return &CSVReader{header: header}
}

func (r *CSVReader) ReadQuotes(path string) ([]domain.Quote, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer f.Close()

	quotes, err := r.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return quotes, nil
}

// Parse reads quotes from an arbitrary reader.
func (r *CSVReader) Parse(in io.Reader) ([]domain.Quote, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var quotes []domain.Quote
	first := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if r.header {
				continue
			}
		}
		if len(row) < 2 {
			continue
		}

		text := strings.TrimSpace(row[1])
		if text == "" {
			continue
		}
		id := strings.TrimSpace(strings.TrimPrefix(row[0], "\ufeff"))
		if id == "" {
			line, _ := cr.FieldPos(0)
			id = strconv.Itoa(line)
		}
		quotes = append(quotes, domain.Quote{ID: id, Text: text})
	}
	return quotes, nil
}
