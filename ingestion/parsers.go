package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/fabfab/nexo/guidelines"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

type DocumentPayload struct {
	Path string
	Data []byte
}

type Fragment struct {
	Text  string
	Topic guidelines.Topic
}

type ParsedDocument struct {
	Title     string
	Fragments []Fragment
}

type DocumentParser interface {
	Parse(ctx context.Context, payload DocumentPayload) (*ParsedDocument, error)
}

// ParserFor returns the parser registered for a format.
func ParserFor(format DocumentFormat) (DocumentParser, error) {
	switch format {
	case FormatMarkdown:
		return markdownParser{}, nil
	case FormatText:
		return textParser{}, nil
	case FormatPDF:
		return pdfParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported document format %q", format)
	}
}

type markdownParser struct{}

func (markdownParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	content := normalizePlainText(string(payload.Data))
	title := ExtractTitle(content, "")

	body := make([]string, 0)
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			body = append(body, "")
			continue
		}
		body = append(body, line)
	}
	if title != "" {
		body = append([]string{title}, body...)
	}
	return buildDocument(strings.Join(body, "\n"), title, payload.Path), nil
}

type textParser struct{}

func (textParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	content := normalizePlainText(string(payload.Data))
	return buildDocument(content, "", payload.Path), nil
}

type pdfParser struct{}

func (pdfParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	doc, err := pdf.NewReader(bytes.NewReader(payload.Data), int64(len(payload.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	plain, err := doc.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	return buildDocument(normalizePlainText(buf.String()), "", payload.Path), nil
}

// buildDocument prefers the bullet outline of a guideline text and falls
// back to paragraph chunks when the document has no bullets.
func buildDocument(content, title, path string) *ParsedDocument {
	outline := guidelines.ParseOutline(content)
	if title == "" {
		title = outline.Title
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	fragments := make([]Fragment, 0, len(outline.Points))
	if hasBullets(content) {
		for _, point := range outline.Points {
			if len(point.Text) <= defaultChunkSize {
				fragments = append(fragments, Fragment{Text: point.Text, Topic: point.Topic})
				continue
			}
			for _, chunk := range ChunkText(point.Text, defaultChunkSize, defaultChunkOverlap) {
				fragments = append(fragments, Fragment{Text: chunk, Topic: guidelines.ClassifyTopic(chunk)})
			}
		}
	}

	if len(fragments) == 0 {
		for _, chunk := range ChunkText(content, defaultChunkSize, defaultChunkOverlap) {
			fragments = append(fragments, Fragment{Text: chunk, Topic: guidelines.ClassifyTopic(chunk)})
		}
	}

	return &ParsedDocument{Title: title, Fragments: fragments}
}

func hasBullets(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "•") || strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			return true
		}
	}
	return false
}

// ExtractTitle returns the first markdown heading, or fallback.
func ExtractTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return fallback
}

// ChunkText groups blank-line separated paragraphs into chunks of roughly
// target bytes. Paragraphs longer than target are split at word boundaries
// first. With a positive overlap the last paragraph of a chunk is repeated
// at the start of the next.
func ChunkText(content string, target, overlap int) []string {
	paragraphs := make([]string, 0)
	for _, paragraph := range strings.Split(normalizePlainText(content), "\n\n") {
		p := strings.TrimSpace(paragraph)
		if p == "" || strings.HasPrefix(p, "#") && !strings.Contains(p, "\n") {
			continue
		}
		paragraphs = append(paragraphs, splitLong(p, target)...)
	}

	chunks := make([]string, 0)
	current := make([]string, 0)
	currentLen := 0

	for _, p := range paragraphs {
		if currentLen+len(p) > target && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			last := current[len(current)-1]
			if overlap > 0 && len(last)+len(p) <= target {
				current = []string{last}
				currentLen = len(last)
			} else {
				current = current[:0]
				currentLen = 0
			}
		}

		current = append(current, p)
		currentLen += len(p)
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}

	return chunks
}

// splitLong cuts text into pieces of at most target bytes without breaking
// words. A single word longer than target is kept whole.
func splitLong(text string, target int) []string {
	if target <= 0 || len(text) <= target {
		return []string{text}
	}

	pieces := make([]string, 0, len(text)/target+1)
	var sb strings.Builder
	for _, word := range strings.Fields(text) {
		if sb.Len() > 0 && sb.Len()+1+len(word) > target {
			pieces = append(pieces, sb.String())
			sb.Reset()
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(word)
	}
	if sb.Len() > 0 {
		pieces = append(pieces, sb.String())
	}
	return pieces
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
