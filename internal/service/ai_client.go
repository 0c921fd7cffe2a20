package service

import (
	"context"
)

// EmbedMode tags the representation an asymmetric encoder should produce.
// Query embeddings and passage embeddings live in the same space but are
// encoded differently; search text must always use EmbedModeQuery and
// listing documents EmbedModePassage. The two are never mixed.
type EmbedMode string

const (
	EmbedModeQuery   EmbedMode = "query"
	EmbedModePassage EmbedMode = "passage"
)

// CompletionClient is the completion service collaborator: it consumes an
// ordered message list plus a capability catalogue and returns either free
// text or capability invocation requests.
type CompletionClient interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// EmbeddingClient is the embedding service collaborator.
type EmbeddingClient interface {
	// EmbedText returns a fixed-length vector for text encoded in the given mode.
	EmbedText(ctx context.Context, text string, mode EmbedMode) ([]float32, error)

	// EmbedTexts embeds a batch of texts, preserving input order.
	EmbedTexts(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)
}

// Ensure OpenAIClient implements both collaborator contracts
var (
	_ CompletionClient = (*OpenAIClient)(nil)
	_ EmbeddingClient  = (*OpenAIClient)(nil)
)
