// Package extract reads catalog spreadsheets into records and operator guide
// files into plain text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for guide files of an unknown type.
var ErrUnsupportedFormat = errors.New("unsupported guide format")

// GuideExtensions are the file types accepted as user guides.
var GuideExtensions = []string{".pdf", ".docx", ".txt", ".md"}

// IsGuide reports whether path has a guide file extension.
func IsGuide(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range GuideExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Extractor extracts plain text from guide documents.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its trimmed text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content based on ext, which includes the leading dot.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".txt", ".md":
		text = extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
