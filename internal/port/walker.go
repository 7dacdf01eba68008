package port

import "quoterag/internal/domain"

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// QuoteReader parses a raw corpus file into quotes.
type QuoteReader interface {
	ReadQuotes(path string) ([]domain.Quote, error)
}
