package pipeline

import (
	"fmt"
	"strings"
)

const promptTemplate = `Based on the following contexts, answer the question.

Contexts:
%s

Question: %s

Answer:`

// BuildPrompt assembles the generation prompt from retrieved chunk texts and
// the user's question. Contexts are concatenated in retrieval order.
func BuildPrompt(contexts []string, question string) string {
	return fmt.Sprintf(promptTemplate, strings.Join(contexts, " "), question)
}
