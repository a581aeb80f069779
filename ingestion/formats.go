// Package ingestion parses guideline documents into passages and persists
// them to the vector store and the knowledge graph.
package ingestion

import (
	"path/filepath"
	"strings"
)

// DocumentFormat enumerates supported guideline file formats.
type DocumentFormat string

const (
	FormatUnknown  DocumentFormat = ""
	FormatMarkdown DocumentFormat = "markdown"
	FormatText     DocumentFormat = "text"
	FormatPDF      DocumentFormat = "pdf"
)

// DetectFormat infers a document format from the path's extension.
func DetectFormat(path string) DocumentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt":
		return FormatText
	case ".pdf":
		return FormatPDF
	default:
		return FormatUnknown
	}
}

// Supported reports whether path has an extension the ingester can parse.
func Supported(path string) bool {
	return DetectFormat(path) != FormatUnknown
}
