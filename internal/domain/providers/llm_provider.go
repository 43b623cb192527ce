package providers

import "context"

// GenerationParams are the fixed decoding knobs passed on every request.
type GenerationParams struct {
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// LLMProvider generates text from a prompt. Implementations must honor the
// context deadline; a timeout surfaces as an ordinary error.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
