package ingestion_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabfab/nexo/guidelines"
	"github.com/fabfab/nexo/ingestion"
)

func TestDetectFormat(t *testing.T) {
	cases := map[string]ingestion.DocumentFormat{
		"aha/post-ami.md":       ingestion.FormatMarkdown,
		"aha/post-ami.MARKDOWN": ingestion.FormatMarkdown,
		"ges/iam.txt":           ingestion.FormatText,
		"ges/iam.PDF":           ingestion.FormatPDF,
		"ges/iam.csv":           ingestion.FormatUnknown,
	}
	for path, want := range cases {
		if got := ingestion.DetectFormat(path); got != want {
			t.Fatalf("DetectFormat(%q) = %q, want %q", path, got, want)
		}
	}
	if ingestion.Supported("notes.docx") {
		t.Fatal("docx should not be supported")
	}
}

func TestTextParserUsesReferenceOutline(t *testing.T) {
	parser, err := ingestion.ParserFor(ingestion.FormatText)
	if err != nil {
		t.Fatalf("parser: %v", err)
	}

	doc, err := parser.Parse(context.Background(), ingestion.DocumentPayload{
		Path: "builtin/aha-reference.txt",
		Data: []byte(guidelines.Reference(guidelines.SourceAHA)),
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if doc.Title != "AHA: Post-AMI Recommendations" {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if len(doc.Fragments) != 13 {
		t.Fatalf("expected 13 passages, got %d", len(doc.Fragments))
	}
	if doc.Fragments[0].Topic != guidelines.TopicBloodPressure {
		t.Fatalf("expected first passage about blood pressure, got %q", doc.Fragments[0].Topic)
	}
}

func TestMarkdownParserSkipsHeadings(t *testing.T) {
	parser, _ := ingestion.ParserFor(ingestion.FormatMarkdown)
	content := "# Guía GES IAM\n\n## Rehabilitación\n\n- Rehabilitación cardíaca fase II: 15 sesiones\n\n## Nutrición\n\n- Dieta mediterránea baja en sodio\n"

	doc, err := parser.Parse(context.Background(), ingestion.DocumentPayload{Path: "ges.md", Data: []byte(content)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Title != "Guía GES IAM" {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if len(doc.Fragments) != 2 {
		t.Fatalf("expected 2 passages, got %+v", doc.Fragments)
	}
	if doc.Fragments[0].Topic != guidelines.TopicRehabilitation || doc.Fragments[1].Topic != guidelines.TopicDiet {
		t.Fatalf("unexpected topics: %+v", doc.Fragments)
	}
	if strings.Contains(doc.Fragments[0].Text, "#") {
		t.Fatalf("heading leaked into passage: %q", doc.Fragments[0].Text)
	}
}

func TestParserFallsBackToParagraphChunks(t *testing.T) {
	parser, _ := ingestion.ParserFor(ingestion.FormatText)
	content := "Manejo ambulatorio\n\nEl control de presión arterial es prioritario.\n\nSe recomienda actividad física regular."

	doc, err := parser.Parse(context.Background(), ingestion.DocumentPayload{Path: "notes/ambulatorio.txt", Data: []byte(content)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Title != "Manejo ambulatorio" {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if len(doc.Fragments) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(doc.Fragments))
	}
	if doc.Fragments[0].Topic != guidelines.TopicBloodPressure {
		t.Fatalf("expected blood pressure topic, got %q", doc.Fragments[0].Topic)
	}
}

func TestMarkdownParserChunksProseAfterBullets(t *testing.T) {
	parser, _ := ingestion.ParserFor(ingestion.FormatMarkdown)

	var sb strings.Builder
	sb.WriteString("# Guía GES\n\n• Primer control en 7 a 14 días.\n\n")
	paragraph := strings.Repeat("La rehabilitación cardíaca temprana mejora la capacidad funcional y reduce los reingresos hospitalarios. ", 30)
	for i := 0; i < 6; i++ {
		sb.WriteString(paragraph)
		sb.WriteString("\n\n")
	}

	doc, err := parser.Parse(context.Background(), ingestion.DocumentPayload{Path: "ges.md", Data: []byte(sb.String())})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Fragments[0].Text != "Primer control en 7 a 14 días." {
		t.Fatalf("prose glued onto bullet: %d bytes", len(doc.Fragments[0].Text))
	}
	if len(doc.Fragments) < 7 {
		t.Fatalf("expected prose split into several passages, got %d", len(doc.Fragments))
	}
	for i, fragment := range doc.Fragments {
		if len(fragment.Text) > 1000 {
			t.Fatalf("fragment %d is %d bytes", i, len(fragment.Text))
		}
	}
	if doc.Fragments[1].Topic != guidelines.TopicRehabilitation {
		t.Fatalf("expected rehabilitation topic on prose, got %q", doc.Fragments[1].Topic)
	}
}

func TestChunkTextSplitsLongParagraph(t *testing.T) {
	long := strings.Repeat("palabra ", 400)
	chunks := ingestion.ChunkText(long, 200, 50)
	if len(chunks) < 10 {
		t.Fatalf("expected long paragraph to be split, got %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 200 {
			t.Fatalf("chunk %d is %d bytes", i, len(chunk))
		}
		if strings.HasPrefix(chunk, "alabra") || strings.HasSuffix(chunk, "palabr") {
			t.Fatalf("chunk %d breaks a word: %q", i, chunk)
		}
	}
}

func TestPDFParserRejectsInvalidData(t *testing.T) {
	parser, _ := ingestion.ParserFor(ingestion.FormatPDF)
	if _, err := parser.Parse(context.Background(), ingestion.DocumentPayload{Path: "bad.pdf", Data: []byte("not a pdf")}); err == nil {
		t.Fatal("expected error for invalid pdf")
	}
}

func TestParserForUnknownFormat(t *testing.T) {
	if _, err := ingestion.ParserFor(ingestion.FormatUnknown); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestChunkTextRespectsOverlap(t *testing.T) {
	text := "# Title\n\n" +
		"Paragraph one." +
		"\n\n" +
		"Paragraph two is quite a bit longer than the first paragraph and should trigger a split." +
		"\n\n" +
		"Paragraph three."

	chunks := ingestion.ChunkText(text, 50, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0] == chunks[1] {
		t.Fatal("expected overlapping but not identical chunks")
	}
	if strings.Contains(chunks[0], "# Title") {
		t.Fatalf("heading should not be chunked: %q", chunks[0])
	}
	if len(ingestion.ChunkText("\n\n", 100, 20)) != 0 {
		t.Fatal("expected no chunks for empty content")
	}
}

func TestExtractTitle(t *testing.T) {
	if title := ingestion.ExtractTitle("Some intro\n# Heading One\nMore text", "fallback"); title != "Heading One" {
		t.Fatalf("expected title 'Heading One', got %q", title)
	}
	if title := ingestion.ExtractTitle("no heading", "fallback"); title != "fallback" {
		t.Fatalf("expected fallback, got %q", title)
	}
}

func TestIngestMissingEmbedder(t *testing.T) {
	svc := ingestion.NewService((*pgxpool.Pool)(nil), nil, nil, nil, 128)
	if _, err := svc.IngestDirectory(context.Background(), guidelines.SourceAHA, "./does-not-matter"); err == nil {
		t.Fatal("expected error when embedder is nil")
	}
	if _, err := svc.IngestReference(context.Background()); err == nil {
		t.Fatal("expected error when embedder is nil")
	}
	if _, err := svc.IngestFile(context.Background(), guidelines.SourceGES, "ges.md"); err == nil {
		t.Fatal("expected error when embedder is nil")
	}
}

func TestWatcherReportsSupportedFiles(t *testing.T) {
	dir := t.TempDir()

	watcher, err := ingestion.NewWatcher(nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	changed := make(chan string, 10)
	go func() {
		_ = watcher.Run(ctx, dir, func(_ context.Context, path string) error {
			changed <- path
			return nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "ignored.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "aha.md"), []byte("# AHA\n- Presión <130/80"), 0o644); err != nil {
		t.Fatalf("write markdown: %v", err)
	}

	select {
	case path := <-changed:
		if filepath.Base(path) != "aha.md" {
			t.Fatalf("unexpected change reported: %s", path)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for watcher event")
	}
}

func TestWatcherCoversSubdirectories(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "aha", "2024")
	if err := os.MkdirAll(existing, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	watcher, err := ingestion.NewWatcher(nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changed := make(chan string, 10)
	go func() {
		_ = watcher.Run(ctx, dir, func(_ context.Context, path string) error {
			changed <- filepath.Base(path)
			return nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(existing, "presion.md"), []byte("# AHA\n- Presión <130/80"), 0o644); err != nil {
		t.Fatalf("write nested markdown: %v", err)
	}
	waitForChange(ctx, t, changed, "presion.md")

	added := filepath.Join(dir, "ges")
	if err := os.Mkdir(added, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(added, "dieta.txt"), []byte("GES\n- Dieta baja en sodio"), 0o644); err != nil {
		t.Fatalf("write text: %v", err)
	}
	waitForChange(ctx, t, changed, "dieta.txt")
}

func waitForChange(ctx context.Context, t *testing.T, changed <-chan string, want string) {
	t.Helper()
	for {
		select {
		case name := <-changed:
			if name == want {
				return
			}
		case <-ctx.Done():
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}
