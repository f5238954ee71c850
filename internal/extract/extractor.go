// Package extract provides text extraction from uploaded document files.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnreadable is returned when a document's text cannot be extracted
// (unreadable file, broken format, or nothing extractable).
var ErrUnreadable = errors.New("unreadable document")

// Extractor extracts plain-text segments from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text as a sequence of
// segments: one per page for PDFs, a single segment for other formats.
// Failures surface as ErrUnreadable.
func (e *Extractor) Extract(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text segments from content based on the extension
// (with leading dot, e.g. ".pdf"). Unknown extensions are treated as plain
// text.
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	default:
		return extractPlain(content)
	}
}

// Supported reports whether the extension has a dedicated extractor or is
// plain text. Used by ingestion surfaces to filter uploads and watched files.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".xlsx", ".txt", ".md", ".rst":
		return true
	}
	return false
}
