// Package generate provides the text-generation backend for answering
// queries from retrieved contexts.
package generate

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the generation service cannot be reached
// or refuses the request (network failure, quota). The pipeline does not
// retry; callers decide whether to.
var ErrUnavailable = errors.New("generation service unavailable")

// Generator produces text for a prompt. maxTokens caps the answer length
// and temperature controls sampling randomness.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}
