package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns the content as a single UTF-8 segment. Invalid
// sequences are replaced with the replacement character.
func extractPlain(content []byte) ([]string, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return []string{text}, nil
}
