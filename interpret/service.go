package interpret

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/fabfab/nexo/embeddings"
	"github.com/fabfab/nexo/guidelines"
	"github.com/fabfab/nexo/llm"
	"github.com/fabfab/nexo/metrics"
)

const (
	defaultPassageLimit = 6
	defaultRelatedLimit = 3
	interpretMaxTokens  = 500
)

type Config struct {
	PassageLimit int
	// RelatedLimit caps the topic-related passages pulled from the graph.
	RelatedLimit int
}

// Service interprets guideline questions with a language model. Passages
// similar to the question are pulled from the vector store when one is
// configured, and the knowledge graph adds passages on the same topics;
// otherwise, or when nothing is stored for the source, the full reference
// text is used as context.
type Service struct {
	vectors  VectorStore
	graph    GraphStore
	embedder embeddings.Embedder
	llm      llm.Client
	logger   *log.Logger
	cfg      Config
}

func NewService(vectors VectorStore, graph GraphStore, embedder embeddings.Embedder, llmClient llm.Client, logger *log.Logger, cfg Config) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.PassageLimit <= 0 {
		cfg.PassageLimit = defaultPassageLimit
	}
	if cfg.RelatedLimit <= 0 {
		cfg.RelatedLimit = defaultRelatedLimit
	}

	return &Service{
		vectors:  vectors,
		graph:    graph,
		embedder: embedder,
		llm:      llmClient,
		logger:   logger,
		cfg:      cfg,
	}
}

// Interpret returns the model's answer. A failed model call is not an error
// for the caller: it yields an apology pointing at the official guidelines.
func (s *Service) Interpret(ctx context.Context, source guidelines.Source, query string) (string, error) {
	start := time.Now()
	if err := guidelines.ValidateQuery(query); err != nil {
		return "", err
	}
	if s.llm == nil {
		return "", fmt.Errorf("llm client is not configured")
	}

	query = strings.TrimSpace(query)
	grounding := s.guidelineContext(ctx, source, query)

	answer, err := s.llm.Complete(ctx, llm.SystemPrompt(interpretPrompt(source, grounding, query), interpretMaxTokens))
	if err != nil || strings.TrimSpace(answer) == "" {
		if ctx.Err() != nil {
			metrics.ObserveInterpretation(NameLLM, source.String(), metrics.OutcomeError, start)
			return "", ctx.Err()
		}
		s.logger.Printf("interpret %s guidelines: %v", source, err)
		metrics.ObserveInterpretation(NameLLM, source.String(), metrics.OutcomeFallback, start)
		return apology(source), nil
	}

	metrics.ObserveInterpretation(NameLLM, source.String(), metrics.OutcomeOK, start)
	return strings.TrimSpace(answer), nil
}

func (s *Service) guidelineContext(ctx context.Context, source guidelines.Source, query string) string {
	reference := guidelines.Reference(source)
	if s.vectors == nil || s.embedder == nil {
		return reference
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		s.logger.Printf("embed guideline question: %v", err)
		return reference
	}
	if len(vectors) == 0 {
		s.logger.Printf("embedder returned no vectors, using reference text")
		return reference
	}

	passages, err := s.vectors.SimilarPassages(ctx, source, vectors[0], s.cfg.PassageLimit)
	if err != nil {
		s.logger.Printf("guideline passage search: %v", err)
		return reference
	}
	if len(passages) == 0 {
		s.logger.Printf("no %s passages ingested, using reference text", source)
		return reference
	}

	return buildPassageContext(s.withRelated(ctx, source, passages))
}

// withRelated appends graph neighbours after the vector hits. They carry a
// zero score so they are listed last.
func (s *Service) withRelated(ctx context.Context, source guidelines.Source, passages []Passage) []Passage {
	if s.graph == nil {
		return passages
	}

	seen := make(map[string]struct{}, len(passages))
	ids := make([]string, 0, len(passages))
	for _, p := range passages {
		seen[p.ID] = struct{}{}
		ids = append(ids, p.ID)
	}

	related, err := s.graph.RelatedPassages(ctx, source, ids, s.cfg.RelatedLimit)
	if err != nil {
		s.logger.Printf("related passage lookup: %v", err)
		return passages
	}

	merged := append([]Passage(nil), passages...)
	for _, p := range related {
		if _, ok := seen[p.ID]; ok || p.Content == "" {
			continue
		}
		seen[p.ID] = struct{}{}
		p.Score = 0
		merged = append(merged, p)
	}
	return merged
}

func buildPassageContext(passages []Passage) string {
	ordered := append([]Passage(nil), passages...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	var sb strings.Builder
	for _, passage := range ordered {
		sb.WriteString("• ")
		sb.WriteString(strings.TrimSpace(passage.Content))
		if passage.Title != "" {
			sb.WriteString(fmt.Sprintf(" [%s]", passage.Title))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func interpretPrompt(source guidelines.Source, grounding, query string) string {
	var sb strings.Builder
	sb.WriteString("You are a medical AI assistant specializing in cardiac care guidelines.\n\n")
	sb.WriteString(fmt.Sprintf("The following are the %s guidelines for post-myocardial infarction care:\n\n", source))
	sb.WriteString(strings.TrimSpace(grounding))
	sb.WriteString("\n\nUser question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nPlease provide a clear, accurate answer based specifically on these guidelines. ")
	sb.WriteString("If the guidelines don't address the question directly, acknowledge this and provide general information based on the guidelines' overall approach.\n\n")
	sb.WriteString("Your answer should be:\n")
	sb.WriteString("1. Medically accurate and based on the guidelines\n")
	sb.WriteString("2. Easy to understand for healthcare providers\n")
	sb.WriteString("3. Concise but comprehensive\n")
	sb.WriteString("4. Include specific recommendations from the guidelines when applicable\n")
	sb.WriteString("Answer in Spanish.")
	return sb.String()
}

func apology(source guidelines.Source) string {
	return fmt.Sprintf("Lo siento, no pude interpretar las guías clínicas de %s en este momento. Por favor, consulte directamente las guías oficiales.", source)
}

var _ Interpreter = (*Service)(nil)
