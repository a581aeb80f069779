package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/nexo/database"
	"github.com/fabfab/nexo/embeddings"
	"github.com/fabfab/nexo/guidelines"
	"github.com/fabfab/nexo/knowledge"
	"github.com/fabfab/nexo/metrics"
)

type Service struct {
	pool      *pgxpool.Pool
	driver    neo4j.DriverWithContext
	embedder  embeddings.Embedder
	logger    *log.Logger
	dimension int
}

// Result summarises one ingested document.
type Result struct {
	DocumentID string
	Path       string
	Title      string
	Passages   int
	Unchanged  bool
}

func NewService(pool *pgxpool.Pool, driver neo4j.DriverWithContext, embedder embeddings.Embedder, logger *log.Logger, dimension int) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		pool:      pool,
		driver:    driver,
		embedder:  embedder,
		logger:    logger,
		dimension: dimension,
	}
}

func (s *Service) ready(ctx context.Context) error {
	if s.embedder == nil {
		return fmt.Errorf("embedder not configured")
	}
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if err := database.EnsureGuidelineSchema(ctx, s.pool, s.dimension); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// IngestReference stores the built-in AHA and GES recommendation texts so
// the LLM interpreter has grounding before any file is ingested.
func (s *Service) IngestReference(ctx context.Context) ([]Result, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(guidelines.Sources()))
	for _, source := range guidelines.Sources() {
		payload := DocumentPayload{
			Path: "builtin/" + strings.ToLower(source.String()) + "-reference.txt",
			Data: []byte(guidelines.Reference(source)),
		}
		res, err := s.ingestPayload(ctx, source, FormatText, payload)
		if err != nil {
			return results, fmt.Errorf("ingest %s reference: %w", source, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) IngestFile(ctx context.Context, source guidelines.Source, path string) (Result, error) {
	if err := s.ready(ctx); err != nil {
		return Result{}, err
	}
	return s.ingestFile(ctx, source, path)
}

// IngestDirectory ingests every supported file under dir. Failures are
// logged per file and do not stop the walk.
func (s *Service) IngestDirectory(ctx context.Context, source guidelines.Source, dir string) ([]Result, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("guidelines directory: %w", err)
	}

	entries := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && Supported(path) {
			entries = append(entries, path)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walk guidelines directory: %w", err)
	}

	if len(entries) == 0 {
		s.logger.Printf("no guideline files found in %s", dir)
		return nil, nil
	}

	results := make([]Result, 0, len(entries))
	for _, path := range entries {
		res, err := s.ingestFile(ctx, source, path)
		if err != nil {
			s.logger.Printf("ingest failed for %s: %v", path, err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// Watch ingests dir once and then re-ingests files as they are created or
// written, until ctx is done.
func (s *Service) Watch(ctx context.Context, source guidelines.Source, dir string) error {
	if _, err := s.IngestDirectory(ctx, source, dir); err != nil {
		return err
	}

	watcher, err := NewWatcher(s.logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	return watcher.Run(ctx, dir, func(ctx context.Context, path string) error {
		_, err := s.ingestFile(ctx, source, path)
		return err
	})
}

// Clear removes every ingested guideline document from Postgres and the
// knowledge graph.
func (s *Service) Clear(ctx context.Context) error {
	if s.pool != nil {
		if _, err := s.pool.Exec(ctx, "TRUNCATE guideline_passages, guideline_documents"); err != nil {
			return fmt.Errorf("truncate guideline tables: %w", err)
		}
	}
	if s.driver != nil {
		if err := knowledge.Clear(ctx, s.driver); err != nil {
			return fmt.Errorf("clear knowledge graph: %w", err)
		}
	}
	return nil
}

func (s *Service) ingestFile(ctx context.Context, source guidelines.Source, path string) (Result, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return Result{}, fmt.Errorf("unsupported file %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}

	return s.ingestPayload(ctx, source, format, DocumentPayload{Path: filepath.ToSlash(path), Data: data})
}

func (s *Service) ingestPayload(ctx context.Context, source guidelines.Source, format DocumentFormat, payload DocumentPayload) (res Result, err error) {
	parser, err := ParserFor(format)
	if err != nil {
		return Result{}, err
	}
	parsed, err := parser.Parse(ctx, payload)
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", payload.Path, err)
	}

	res = Result{Path: payload.Path, Title: parsed.Title}
	if len(parsed.Fragments) == 0 {
		s.logger.Printf("skip empty document %s", payload.Path)
		res.Unchanged = true
		return res, nil
	}

	hash := sha256.Sum256(payload.Data)
	hashHex := hex.EncodeToString(hash[:])

	texts := make([]string, len(parsed.Fragments))
	for i, fragment := range parsed.Fragments {
		texts[i] = fragment.Text
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Result{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Printf("rollback error: %v", rbErr)
			}
		}
	}()

	docID, changed, err := upsertDocument(ctx, tx, source, payload.Path, parsed.Title, hashHex)
	if err != nil {
		return Result{}, err
	}
	res.DocumentID = docID.String()

	if !changed {
		if err = tx.Commit(ctx); err != nil {
			return Result{}, fmt.Errorf("commit transaction: %w", err)
		}
		s.logger.Printf("no updates required for %s", payload.Path)
		res.Unchanged = true
		return res, nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		err = fmt.Errorf("embedding count mismatch: have %d passages, %d embeddings", len(texts), len(vectors))
		return Result{}, err
	}

	if _, err = tx.Exec(ctx, "DELETE FROM guideline_passages WHERE document_id = $1", docID); err != nil {
		return Result{}, fmt.Errorf("clear existing passages: %w", err)
	}

	nodes := make([]knowledge.Passage, 0, len(texts))
	for idx, fragment := range parsed.Fragments {
		passageID := uuid.New()
		topic := string(fragment.Topic)
		nodes = append(nodes, knowledge.Passage{
			ID:    passageID.String(),
			Index: idx,
			Text:  fragment.Text,
			Topic: topic,
		})

		if _, err = tx.Exec(ctx, `
			INSERT INTO guideline_passages (id, document_id, source, passage_index, topic, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		`, passageID, docID, source.String(), idx, topic, fragment.Text, pgvector.NewVector(vectors[idx])); err != nil {
			return Result{}, fmt.Errorf("insert passage %d: %w", idx, err)
		}
	}

	// The graph is synced inside the Postgres transaction so a failed sync
	// leaves the old hash in place and the next run retries.
	if s.driver != nil {
		doc := knowledge.Document{
			ID:       docID.String(),
			Source:   source.String(),
			Path:     payload.Path,
			Title:    parsed.Title,
			SHA:      hashHex,
			Passages: nodes,
		}
		if err = knowledge.SyncDocument(ctx, s.driver, doc); err != nil {
			return Result{}, fmt.Errorf("sync knowledge graph: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit transaction: %w", err)
	}

	res.Passages = len(nodes)
	metrics.AddPassages(source.String(), len(nodes))

	s.logger.Printf("ingested %s for %s (%d passages)", payload.Path, source, len(nodes))
	return res, nil
}

func upsertDocument(ctx context.Context, tx pgx.Tx, source guidelines.Source, path, title, sha string) (uuid.UUID, bool, error) {
	var (
		docID        uuid.UUID
		existingHash string
	)

	err := tx.QueryRow(ctx, "SELECT id, sha256 FROM guideline_documents WHERE source = $1 AND source_path = $2", source.String(), path).Scan(&docID, &existingHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			newID := uuid.New()
			if _, execErr := tx.Exec(ctx, `
				INSERT INTO guideline_documents (id, source, source_path, title, sha256, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			`, newID, source.String(), path, title, sha); execErr != nil {
				return uuid.Nil, false, fmt.Errorf("insert document: %w", execErr)
			}
			return newID, true, nil
		}
		return uuid.Nil, false, fmt.Errorf("query document: %w", err)
	}

	if existingHash == sha {
		return docID, false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE guideline_documents
		SET title = $2,
		    sha256 = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, docID, title, sha); err != nil {
		return uuid.Nil, false, fmt.Errorf("update document: %w", err)
	}

	return docID, true, nil
}
