package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"quoterag/internal/domain"
)

const maxLoggedBody = 200

// Options configures a chat completions client.
type Options struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// ChatClient is an OpenAI-compatible chat completions client.
type ChatClient struct {
	provider    string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	client      *http.Client
	logger      *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats tracks usage of a ChatClient.
type Stats struct {
	TotalCalls       int
	FailedCalls      int
	TotalInputChars  int
	TotalOutputChars int
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

var defaultBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"deepseek": "https://api.deepseek.com/v1",
	"ollama":   "http://localhost:11434/v1",
}

// NewChatClient creates a client. Providers other than ollama need an API key.
func NewChatClient(opts Options) (*ChatClient, error) {
	if opts.Provider == "" {
		opts.Provider = "openai"
	}
	if opts.BaseURL == "" {
		base, ok := defaultBaseURLs[opts.Provider]
		if !ok {
			return nil, fmt.Errorf("unknown provider: %s (set base_url for custom endpoints)", opts.Provider)
		}
		opts.BaseURL = base
	}
	if opts.APIKey == "" && opts.Provider != "ollama" {
		return nil, fmt.Errorf("API key not configured for %s generation", opts.Provider)
	}
	if opts.Model == "" {
		return nil, errors.New("generation model not configured")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &ChatClient{
		provider:    opts.Provider,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.Timeout,
		client:      opts.HTTPClient,
		logger:      opts.Logger.Named("generation"),
	}, nil
}

// Chat sends a chat completion request bounded by the client timeout.
func (c *ChatClient) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	inputChars := 0
	for _, msg := range messages {
		inputChars += len(msg.Content)
	}

	output, err := c.chat(ctx, messages)

	c.mu.Lock()
	c.stats.TotalCalls++
	c.stats.TotalInputChars += inputChars
	if err != nil {
		c.stats.FailedCalls++
	} else {
		c.stats.TotalOutputChars += len(output)
	}
	c.mu.Unlock()

	return output, err
}

func (c *ChatClient) chat(ctx context.Context, messages []ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	jsonData, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", domain.NewTransportError(c.provider, domain.OpGeneration, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewTransportError(c.provider, domain.OpGeneration, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("chat request rejected", zap.Int("status", resp.StatusCode), zap.String("body", truncate(body)))
		return "", domain.NewProviderError(c.provider, domain.OpGeneration, resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		c.logger.Debug("malformed chat response", zap.String("body", truncate(body)), zap.Error(err))
		return "", &domain.ProviderError{
			Provider: c.provider, Op: domain.OpGeneration, Status: resp.StatusCode,
			Message: "malformed chat response", Cause: err,
		}
	}
	if chatResp.Error != nil {
		c.logger.Debug("chat provider error", zap.String("message", chatResp.Error.Message))
		return "", &domain.ProviderError{
			Provider: c.provider, Op: domain.OpGeneration, Status: resp.StatusCode,
			Message: "provider reported an error",
		}
	}
	if len(chatResp.Choices) == 0 {
		return "", &domain.ProviderError{
			Provider: c.provider, Op: domain.OpGeneration, Status: resp.StatusCode,
			Message: "no response from model",
		}
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Stats returns a copy of the usage counters.
func (c *ChatClient) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *ChatClient) ModelName() string {
	return c.model
}

// Narrator generates narratives through a ChatClient.
type Narrator struct {
	client *ChatClient
}

func NewNarrator(client *ChatClient) *Narrator {
	return &Narrator{client: client}
}

// Generate asks the model to relate matches to topic.
func (n *Narrator) Generate(ctx context.Context, topic string, matches []domain.RankedMatch) (string, error) {
	prompt, err := BuildPrompt(topic, matches)
	if err != nil {
		return "", err
	}
	return n.client.Chat(ctx, []ChatMessage{
		{Role: "system", Content: SystemInstruction},
		{Role: "user", Content: prompt},
	})
}

func (n *Narrator) ModelName() string {
	return n.client.ModelName()
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}
