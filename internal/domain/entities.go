package domain

// QuoteRecord is one corpus item together with its precomputed embedding.
type QuoteRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"quote"`
	Embedding []float64 `json:"embedding"`
}

// Quote is a corpus item before it has been embedded.
type Quote struct {
	ID   string
	Text string
}

// RankedMatch is a scored quote. Similarity is cosine similarity in [-1, 1].
type RankedMatch struct {
	ID         string  `json:"id"`
	Text       string  `json:"quote"`
	Similarity float64 `json:"similarity"`
}

// NarrativeSource records how a narrative was produced.
type NarrativeSource string

const (
	NarrativeGenerated NarrativeSource = "generated"
	NarrativeFallback  NarrativeSource = "fallback"
	NarrativeNoMatches NarrativeSource = "no_matches"
)

// Narrative is the prose accompanying a successful search.
type Narrative struct {
	Text   string          `json:"text"`
	Source NarrativeSource `json:"source"`
}

// StoreInfo describes a loaded vector store for readiness reporting.
type StoreInfo struct {
	Ready     bool   `json:"ready"`
	Count     int    `json:"count"`
	Dimension int    `json:"dimension"`
	Source    string `json:"source"`
	Reason    string `json:"reason,omitempty"`
}
