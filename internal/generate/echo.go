package generate

import (
	"context"
	"strings"
)

// EchoGenerator returns a truncated copy of the prompt instead of calling a
// model. Used with the mock embedding provider for offline demos and tests.
type EchoGenerator struct{}

// NewEchoGenerator returns an EchoGenerator.
func NewEchoGenerator() *EchoGenerator {
	return &EchoGenerator{}
}

// Generate echoes the prompt, cut to roughly maxTokens words.
func (g *EchoGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	words := strings.Fields(prompt)
	if maxTokens > 0 && len(words) > maxTokens {
		words = words[:maxTokens]
	}
	return strings.Join(words, " "), nil
}
