package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quoterag/internal/domain"
	"quoterag/internal/metrics"
	"quoterag/internal/port"
)

// ErrModelChanged means the target store was built with another embedding model.
var ErrModelChanged = errors.New("store was built with a different embedding model")

// Preparer builds the persisted vector store from raw corpus files.
type Preparer struct {
	walker      port.FileWalker
	reader      port.QuoteReader
	embedder    port.Embedder
	sink        port.CorpusSink
	batchSize   int
	concurrency int
	logger      *zap.Logger
	metrics     *metrics.Recorder
}

// NewPreparer creates a preparer. logger and rec may be nil.
func NewPreparer(
	walker port.FileWalker,
	reader port.QuoteReader,
	embedder port.Embedder,
	sink port.CorpusSink,
	batchSize, concurrency int,
	logger *zap.Logger,
	rec *metrics.Recorder,
) *Preparer {
	if batchSize < 1 {
		batchSize = 100
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preparer{
		walker:      walker,
		reader:      reader,
		embedder:    embedder,
		sink:        sink,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      logger,
		metrics:     rec,
	}
}

// PrepareOptions controls a preparation run.
type PrepareOptions struct {
	Rebuild  bool                 // allow replacing a store built by another model
	Progress func(done, total int) // called after each embedded batch
}

// PrepareFailure records an item that was left out of the store.
type PrepareFailure struct {
	ID     string
	Source string
	Reason string
}

// PrepareResult summarizes a preparation run.
type PrepareResult struct {
	Files    int
	Quotes   int
	Embedded int
	Failures []PrepareFailure
	Duration time.Duration
}

// Prepare reads every corpus file under root, embeds each quote and
// saves the result. Quotes whose embedding fails are skipped and reported;
// the store is only written when at least one quote was embedded.
func (p *Preparer) Prepare(ctx context.Context, root string, opts PrepareOptions) (*PrepareResult, error) {
	start := time.Now()
	result := &PrepareResult{}

	if err := p.checkModel(opts.Rebuild); err != nil {
		return nil, err
	}

	files, err := p.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk corpus: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no corpus files found under %s", root)
	}
	result.Files = len(files)

	quotes := p.collect(files, result)
	result.Quotes = len(quotes)
	if len(quotes) == 0 {
		return result, errors.New("corpus contains no quotes")
	}

	embeddings := p.embedAll(ctx, quotes, result, opts.Progress)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	records := make([]domain.QuoteRecord, 0, len(quotes))
	for i, q := range quotes {
		if embeddings[i] == nil {
			continue
		}
		records = append(records, domain.QuoteRecord{ID: q.ID, Text: q.Text, Embedding: embeddings[i]})
	}
	result.Embedded = len(records)
	if len(records) == 0 {
		return result, errors.New("no quotes could be embedded")
	}

	meta := port.StoreMeta{
		Model:     p.embedder.ModelName(),
		Dimension: len(records[0].Embedding),
		BuiltAt:   time.Now().UTC(),
	}
	if err := p.sink.Save(ctx, records, meta); err != nil {
		return result, fmt.Errorf("failed to save store: %w", err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("store prepared",
		zap.Int("files", result.Files),
		zap.Int("quotes", result.Quotes),
		zap.Int("embedded", result.Embedded),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (p *Preparer) checkModel(rebuild bool) error {
	mr, ok := p.sink.(port.MetaReader)
	if !ok || rebuild {
		return nil
	}
	meta, found, err := mr.Meta()
	if err != nil {
		return fmt.Errorf("failed to read store metadata: %w", err)
	}
	if found && meta.Model != "" && meta.Model != p.embedder.ModelName() {
		return fmt.Errorf("%w: %s (now %s), rerun with rebuild", ErrModelChanged, meta.Model, p.embedder.ModelName())
	}
	return nil
}

// collect reads all files, dropping duplicate ids after their first occurrence.
func (p *Preparer) collect(files []port.FileInfo, result *PrepareResult) []domain.Quote {
	var quotes []domain.Quote
	seen := make(map[string]string)
	for _, f := range files {
		qs, err := p.reader.ReadQuotes(f.Path)
		if err != nil {
			p.logger.Warn("skipping corpus file", zap.String("path", f.Path), zap.Error(err))
			result.Failures = append(result.Failures, PrepareFailure{Source: f.Path, Reason: err.Error()})
			continue
		}
		for _, q := range qs {
			if first, dup := seen[q.ID]; dup {
				result.Failures = append(result.Failures, PrepareFailure{
					ID: q.ID, Source: f.Path, Reason: "duplicate id, first seen in " + first,
				})
				continue
			}
			seen[q.ID] = f.Path
			quotes = append(quotes, q)
		}
	}
	return quotes
}

// embedAll embeds quotes in batches with bounded concurrency. A failed batch
// is retried one quote at a time so a single bad item does not sink its batch.
// The returned slice is aligned with quotes; failed items are nil.
func (p *Preparer) embedAll(ctx context.Context, quotes []domain.Quote, result *PrepareResult, progress func(done, total int)) [][]float64 {
	out := make([][]float64, len(quotes))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for start := 0; start < len(quotes); start += p.batchSize {
		end := min(start+p.batchSize, len(quotes))
		batch := quotes[start:end]
		offset := start

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vecs, failures := p.embedBatch(gctx, batch)

			mu.Lock()
			defer mu.Unlock()
			copy(out[offset:], vecs)
			result.Failures = append(result.Failures, failures...)
			done += len(batch)
			if progress != nil {
				progress(done, len(quotes))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Preparer) embedBatch(ctx context.Context, batch []domain.Quote) ([][]float64, []PrepareFailure) {
	texts := make([]string, len(batch))
	for i, q := range batch {
		texts[i] = q.Text
	}

	vecs, err := p.embedder.Embed(ctx, texts)
	if err == nil && len(vecs) == len(batch) {
		p.metrics.ProviderCall(string(domain.OpEmbedding), "ok")
		return vecs, nil
	}
	p.metrics.ProviderCall(string(domain.OpEmbedding), "error")
	if len(batch) == 1 {
		return make([][]float64, 1), []PrepareFailure{embedFailure(batch[0], err)}
	}

	p.logger.Debug("batch embedding failed, retrying items individually", zap.Int("size", len(batch)), zap.Error(err))
	out := make([][]float64, len(batch))
	var failures []PrepareFailure
	for i, q := range batch {
		if ctx.Err() != nil {
			failures = append(failures, embedFailure(q, ctx.Err()))
			continue
		}
		v, err := p.embedder.Embed(ctx, []string{q.Text})
		if err != nil || len(v) != 1 {
			p.metrics.ProviderCall(string(domain.OpEmbedding), "error")
			failures = append(failures, embedFailure(q, err))
			continue
		}
		p.metrics.ProviderCall(string(domain.OpEmbedding), "ok")
		out[i] = v[0]
	}
	return out, failures
}

func embedFailure(q domain.Quote, err error) PrepareFailure {
	reason := "embedding returned no vector"
	if err != nil {
		reason = err.Error()
	}
	return PrepareFailure{ID: q.ID, Reason: reason}
}
