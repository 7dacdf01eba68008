package domain

import (
	"errors"
	"fmt"
)

// SearchError is the failure branch of a SearchResult.
type SearchError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	err       error
}

func (e *SearchError) Error() string {
	return e.Message
}

func (e *SearchError) Unwrap() error {
	return e.err
}

// SearchResult is either a success carrying quotes (and optionally a narrative)
// or a failure carrying a reason. Use Succeeded or Failed to read it.
type SearchResult struct {
	Success   bool          `json:"success"`
	Topic     string        `json:"topic"`
	Quotes    []RankedMatch `json:"quotes"`
	Narrative *Narrative    `json:"narrative,omitempty"`
	Error     *SearchError  `json:"error,omitempty"`
}

// Succeeded returns the matches and narrative when the search succeeded.
// A nil narrative means none was requested.
func (r SearchResult) Succeeded() ([]RankedMatch, *Narrative, bool) {
	if !r.Success {
		return nil, nil, false
	}
	return r.Quotes, r.Narrative, true
}

// Failed returns the failure reason when the search failed.
func (r SearchResult) Failed() (*SearchError, bool) {
	if r.Success {
		return nil, false
	}
	return r.Error, true
}

// NewSuccess builds the success branch.
func NewSuccess(topic string, quotes []RankedMatch, narrative *Narrative) SearchResult {
	if quotes == nil {
		quotes = []RankedMatch{}
	}
	return SearchResult{Success: true, Topic: topic, Quotes: quotes, Narrative: narrative}
}

// NewFailure builds the failure branch from err, producing a user-facing message.
func NewFailure(topic string, err error) SearchResult {
	return SearchResult{
		Topic:  topic,
		Quotes: []RankedMatch{},
		Error:  toSearchError(err),
	}
}

func toSearchError(err error) *SearchError {
	kind := KindOf(err)
	se := &SearchError{Kind: kind, err: err}

	var (
		verr *ValidationError
		derr *DimensionMismatchError
		perr *ProviderError
	)
	switch kind {
	case KindNotReady:
		se.Message = "Quote store is not available. Run the prepare step to build embeddings first."
	case KindValidation:
		errors.As(err, &verr)
		se.Message = verr.Error()
	case KindDimensionMismatch:
		errors.As(err, &derr)
		se.Message = fmt.Sprintf("Quote store is incompatible with the embedding model (%s). Rebuild the store.", derr.Error())
	case KindEmbeddingProvider, KindGenerationProvider:
		errors.As(err, &perr)
		se.Message = fmt.Sprintf("Could not process topic: %s.", perr.Message)
		se.Retryable = perr.Retryable()
	default:
		se.Message = "Internal error while processing query."
	}
	return se
}
