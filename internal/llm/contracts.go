package llm

import "context"

// Client is the LLM collaborator contract the pipeline depends on:
// prompt in, raw natural-language or near-JSON text out.
type Client interface {
	Generate(ctx context.Context, prompt string, model string) (string, error)
}
