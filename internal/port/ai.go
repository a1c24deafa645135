package port

import "context"

// AIProvider abstracts the model backend used for embeddings and diagnosis
// generation. Implementations can target Ollama, OpenAI, or any compatible API.
type AIProvider interface {
	// ModelName returns the identifier of the generation model in use.
	ModelName() string

	// Embed produces a vector embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch produces embeddings for several texts in one round trip.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Chat sends the prompts plus optional context chunks and blocks for the
	// full response.
	Chat(ctx context.Context, systemPrompt string, userPrompt string, contextChunks []string) (string, error)

	// ChatStream is Chat with the response delivered incrementally. The
	// returned channel is closed when generation finishes.
	ChatStream(ctx context.Context, systemPrompt string, userPrompt string, contextChunks []string) (<-chan string, error)
}
