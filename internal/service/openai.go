package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/theearthwanderer/rentalagent/internal/config"

	"github.com/rs/zerolog/log"
)

// OpenAIClient handles OpenAI-compatible API interactions for both chat
// completions (with tool calling) and embeddings.
type OpenAIClient struct {
	chatCfg    *config.OpenAIConfig
	embedCfg   *config.EmbeddingConfig
	httpClient *http.Client
}

// NewOpenAIClient creates a new OpenAI-compatible client
func NewOpenAIClient(chatCfg *config.OpenAIConfig, embedCfg *config.EmbeddingConfig) *OpenAIClient {
	return &OpenAIClient{
		chatCfg:  chatCfg,
		embedCfg: embedCfg,
		httpClient: &http.Client{
			Timeout: time.Duration(chatCfg.Timeout) * time.Second,
		},
	}
}

// IsEnabled returns whether the client is configured and ready
func (c *OpenAIClient) IsEnabled() bool {
	return c.chatCfg.Enabled
}

// ChatMessage represents a single message in the conversation wire format
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is one capability invocation requested by the model.
// Arguments are serialized structured text and must be parsed before use.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the invocation name and raw argument text
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition advertises one capability to the completion service
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is the schema half of a tool definition
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatCompletionRequest represents a chat completion request
type ChatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []ChatMessage    `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

// ChatCompletionChoice is one candidate completion
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletionResponse represents the API response
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbeddingRequest represents an embedding request
type EmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

// EmbeddingResponse represents the embedding API response
type EmbeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// ChatCompletion performs a chat completion request
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if !c.chatCfg.Enabled {
		return nil, fmt.Errorf("%w: missing API key", ErrModelUnavailable)
	}

	if req.Model == "" {
		req.Model = c.chatCfg.ChatModel
	}
	if req.Temperature == 0 && c.chatCfg.Temperature > 0 {
		req.Temperature = c.chatCfg.Temperature
	}
	if req.MaxTokens == 0 && c.chatCfg.MaxTokens > 0 {
		req.MaxTokens = c.chatCfg.MaxTokens
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.chatCfg.APIBase)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.chatCfg.APIKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrModelUnavailable, resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

// EmbedText embeds a single text in the given mode
func (c *OpenAIClient) EmbedText(ctx context.Context, text string, mode EmbedMode) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text}, mode)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", ErrEmbeddingFailure, len(vectors))
	}
	return vectors[0], nil
}

// EmbedTexts embeds texts in batches, preserving input order
func (c *OpenAIClient) EmbedTexts(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error) {
	if !c.chatCfg.Enabled {
		return nil, fmt.Errorf("%w: missing API key", ErrEmbeddingFailure)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// Asymmetric encoders expect a mode prefix on every input
	prefix := c.embedCfg.PassagePrefix
	if mode == EmbedModeQuery {
		prefix = c.embedCfg.QueryPrefix
	}
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = prefix + t
	}

	allEmbeddings := make([][]float32, 0, len(prefixed))
	batchSize := c.embedCfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	for i := 0; i < len(prefixed); i += batchSize {
		end := i + batchSize
		if end > len(prefixed) {
			end = len(prefixed)
		}

		embeddings, err := c.embedBatch(ctx, prefixed[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i/batchSize, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)

		// small delay between batches to stay under rate limits
		if end < len(prefixed) {
			time.Sleep(100 * time.Millisecond)
		}
	}

	return allEmbeddings, nil
}

func (c *OpenAIClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := EmbeddingRequest{
		Model:          c.embedCfg.Model,
		Input:          texts,
		Dimensions:     c.embedCfg.Dimensions,
		EncodingFormat: "float",
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/embeddings", c.chatCfg.APIBase)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.chatCfg.APIKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailure, resp.StatusCode, string(body))
	}

	var result EmbeddingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	// reassemble in input order
	embeddings := make([][]float32, len(texts))
	for _, item := range result.Data {
		if item.Index < len(embeddings) {
			embeddings[item.Index] = item.Embedding
		}
	}

	log.Debug().Int("count", len(embeddings)).Str("model", result.Model).Int("tokens", result.Usage.TotalTokens).Msg("created embeddings")

	return embeddings, nil
}
