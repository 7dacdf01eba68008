package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"quoterag/internal/domain"
)

const (
	defaultBatchSize = 100
	defaultTimeout   = 30 * time.Second
	maxLoggedBody    = 200
)

// Options configures an OpenAI-compatible embeddings client.
type Options struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Dimension  int // 0 means derive from the model name
	BatchSize  int
	Timeout    time.Duration // per request
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// OpenAIEmbedder calls the /embeddings endpoint of OpenAI or any
// server speaking the same protocol.
type OpenAIEmbedder struct {
	provider  string
	apiKey    string
	model     string
	baseURL   string
	dimension int
	batchSize int
	timeout   time.Duration
	client    *http.Client
	logger    *zap.Logger
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage embeddingUsage  `json:"usage"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAIEmbedder(opts Options) (*OpenAIEmbedder, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Provider == "" {
		opts.Provider = "openai"
	}
	return NewOpenAICompatibleEmbedder(opts)
}

func NewDeepSeekEmbedder(opts Options) (*OpenAIEmbedder, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.deepseek.com/v1"
	}
	opts.Provider = "deepseek"
	return NewOpenAICompatibleEmbedder(opts)
}

func NewJinaEmbedder(opts Options) (*OpenAIEmbedder, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.jina.ai/v1"
	}
	opts.Provider = "jina"
	return NewOpenAICompatibleEmbedder(opts)
}

// NewOllamaEmbedder talks to a local Ollama server, which needs no API key.
func NewOllamaEmbedder(opts Options) (*OpenAIEmbedder, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434/v1"
	}
	if opts.APIKey == "" {
		opts.APIKey = "ollama"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	opts.Provider = "ollama"
	return NewOpenAICompatibleEmbedder(opts)
}

func NewOpenAICompatibleEmbedder(opts Options) (*OpenAIEmbedder, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("API key not configured for %s embeddings", opts.Provider)
	}
	if opts.Model == "" {
		return nil, errors.New("embedding model not configured")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("embedding base URL not configured")
	}

	dimension := opts.Dimension
	if dimension == 0 {
		dimension = modelDimension(opts.Model)
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIEmbedder{
		provider:  opts.Provider,
		apiKey:    opts.APIKey,
		model:     opts.Model,
		baseURL:   opts.BaseURL,
		dimension: dimension,
		batchSize: batch,
		timeout:   timeout,
		client:    client,
		logger:    logger.Named("embedding"),
	}, nil
}

func modelDimension(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	case "jina-embeddings-v3":
		return 1024
	case "jina-embeddings-v4":
		return 2048
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	default:
		return 0
	}
}

// Embed returns one vector per text, in input order. Texts are sent in
// batches; each request is bounded by the configured timeout.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float64, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, embeddings...)
	}

	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	jsonData, err := json.Marshal(embeddingRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.NewTransportError(e.provider, domain.OpEmbedding, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransportError(e.provider, domain.OpEmbedding, err)
	}

	if resp.StatusCode != http.StatusOK {
		e.logger.Debug("embedding request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(body)))
		return nil, domain.NewProviderError(e.provider, domain.OpEmbedding, resp.StatusCode)
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		e.logger.Debug("malformed embedding response", zap.String("body", truncate(body)), zap.Error(err))
		return nil, &domain.ProviderError{
			Provider: e.provider, Op: domain.OpEmbedding, Status: resp.StatusCode,
			Message: "malformed embedding response", Cause: err,
		}
	}

	if embResp.Error != nil {
		e.logger.Debug("embedding provider error", zap.String("type", embResp.Error.Type), zap.String("message", embResp.Error.Message))
		return nil, &domain.ProviderError{
			Provider: e.provider, Op: domain.OpEmbedding, Status: resp.StatusCode,
			Message: "provider reported an error",
		}
	}

	embeddings := make([][]float64, len(texts))
	for _, data := range embResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return nil, &domain.ProviderError{
				Provider: e.provider, Op: domain.OpEmbedding, Status: resp.StatusCode,
				Message: fmt.Sprintf("response missing embedding for input %d", i),
			}
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}
