package usecase

import (
	"context"
	"errors"
	"time"

	"quoterag/internal/domain"
	"quoterag/internal/port"
)

const checkText = "test"

// ProviderCheck reports one connectivity call to an embedding or generation provider.
// Message never carries credentials or raw response bodies.
type ProviderCheck struct {
	Op        domain.ProviderOp `json:"op"`
	Model     string            `json:"model,omitempty"`
	OK        bool              `json:"ok"`
	Skipped   bool              `json:"skipped,omitempty"`
	Dimension int               `json:"dimension,omitempty"`
	Status    int               `json:"status,omitempty"`
	Kind      domain.ErrorKind  `json:"kind,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
	Message   string            `json:"message,omitempty"`
	Latency   time.Duration     `json:"latency"`
}

// CheckEmbedder embeds a single short text and reports the returned dimension.
func CheckEmbedder(ctx context.Context, embedder port.Embedder) ProviderCheck {
	check := ProviderCheck{Op: domain.OpEmbedding, Model: embedder.ModelName()}

	start := time.Now()
	vecs, err := embedder.Embed(ctx, []string{checkText})
	check.Latency = time.Since(start)

	if err == nil && (len(vecs) != 1 || len(vecs[0]) == 0) {
		err = &domain.ProviderError{Provider: check.Model, Op: domain.OpEmbedding, Message: "no embedding returned"}
	}
	if err != nil {
		check.fail(err)
		return check
	}
	check.OK = true
	check.Dimension = len(vecs[0])
	return check
}

// CheckGenerator asks for a short narrative over one placeholder quote.
// A nil generator is reported as skipped.
func CheckGenerator(ctx context.Context, generator port.Generator) ProviderCheck {
	check := ProviderCheck{Op: domain.OpGeneration}
	if generator == nil {
		check.Skipped = true
		check.Message = "generation disabled"
		return check
	}
	check.Model = generator.ModelName()

	start := time.Now()
	text, err := generator.Generate(ctx, checkText, []domain.RankedMatch{
		{ID: "1", Text: "Say hello.", Similarity: 1},
	})
	check.Latency = time.Since(start)

	if err == nil && text == "" {
		err = &domain.ProviderError{Provider: check.Model, Op: domain.OpGeneration, Message: "empty response"}
	}
	if err != nil {
		check.fail(err)
		return check
	}
	check.OK = true
	return check
}

func (c *ProviderCheck) fail(err error) {
	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		perr = domain.NewTransportError(c.Model, c.Op, err)
	}
	c.Kind = domain.KindOf(perr)
	c.Status = perr.Status
	c.Retryable = perr.Retryable()
	c.Message = perr.Message
}
