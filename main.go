package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/nexo/alerts"
	"github.com/fabfab/nexo/api"
	"github.com/fabfab/nexo/config"
	"github.com/fabfab/nexo/database"
	"github.com/fabfab/nexo/embeddings"
	"github.com/fabfab/nexo/guidelines"
	"github.com/fabfab/nexo/ingestion"
	"github.com/fabfab/nexo/interpret"
	"github.com/fabfab/nexo/knowledge"
	"github.com/fabfab/nexo/llm"
	"github.com/fabfab/nexo/notify"
	"github.com/fabfab/nexo/patients"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "address to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var pool *pgxpool.Pool
	if cfg.Storage == config.StoragePostgres || cfg.Interpreter == config.InterpreterLLM {
		p, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		switch {
		case err == nil:
			defer p.Close()
			pool = p
		case cfg.Storage == config.StoragePostgres:
			logger.Fatalf("postgres connection: %v", err)
		default:
			logger.Printf("postgres unavailable, answering from reference text: %v", err)
		}
	}

	var store patients.Store = patients.NewMemoryStore()
	var params alerts.ParameterStore = alerts.NewMemoryParameterStore()
	switch cfg.Storage {
	case config.StorageMemory:
	case config.StoragePostgres:
		if err := database.EnsureCareSchema(ctx, pool); err != nil {
			logger.Fatalf("ensure care schema: %v", err)
		}
		store = patients.NewPostgresStore(pool)
		params = alerts.NewPostgresParameterStore(pool)
	default:
		logger.Fatalf("unsupported storage %q", cfg.Storage)
	}

	var recorder alerts.InterventionRecorder
	driver := optionalNeo4j(ctx, cfg, logger)
	if driver != nil {
		defer driver.Close(context.Background())
		recorder = knowledge.NewGraph(driver)
	}

	var llmClient llm.Client
	if client, err := llm.NewClient(cfg); err != nil {
		logger.Printf("llm unavailable, alert messages use fallback text: %v", err)
	} else {
		llmClient = client
	}

	interpreter, err := buildInterpreter(ctx, cfg, logger, pool, driver, llmClient)
	if err != nil {
		logger.Fatalf("interpreter setup: %v", err)
	}

	var sender notify.Sender
	if wa := notify.NewWhatsAppFromConfig(cfg); wa.Configured() {
		sender = wa
	} else {
		logger.Println("whatsapp not configured, critical alerts are recorded without delivery")
	}

	server := api.New(api.Dependencies{
		Interpreter: interpreter,
		Patients:    store,
		Parameters:  params,
		Alerts:      alerts.NewService(store, params, llmClient, sender, recorder, logger),
	}, logger)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s (storage=%s, interpreter=%s)", *addr, cfg.Storage, cfg.Interpreter)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server: %v", err)
	}
}

func askCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	sourceFlag := flags.String("source", string(guidelines.SourceAHA), "guideline source (AHA or GES)")
	question := flags.String("question", "", "question about the guidelines")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}

	source, err := guidelines.ParseSource(*sourceFlag)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	if strings.TrimSpace(*question) == "" {
		fmt.Print("Enter your question: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			*question = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Fatalf("read question: %v", err)
		}
	}
	if err := guidelines.ValidateQuery(*question); err != nil {
		fmt.Println(guidelines.BlankQueryMessage)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		pool      *pgxpool.Pool
		driver    neo4j.DriverWithContext
		llmClient llm.Client
	)
	if cfg.Interpreter == config.InterpreterLLM {
		if driver = optionalNeo4j(ctx, cfg, logger); driver != nil {
			defer driver.Close(context.Background())
		}
		if pool, err = database.NewPostgresPool(ctx, cfg.PostgresDSN); err != nil {
			logger.Printf("postgres unavailable, answering from reference text: %v", err)
		} else {
			defer pool.Close()
		}
		if llmClient, err = llm.NewClient(cfg); err != nil {
			logger.Fatalf("llm setup: %v", err)
		}
	}

	interpreter, err := buildInterpreter(ctx, cfg, logger, pool, driver, llmClient)
	if err != nil {
		logger.Fatalf("interpreter setup: %v", err)
	}

	answer, err := interpreter.Interpret(ctx, source, *question)
	if err != nil {
		logger.Fatalf("interpret failed: %v", err)
	}
	fmt.Println(answer)
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dir := flags.String("dir", cfg.GuidelinesDir, "directory containing guideline documents")
	sourceFlag := flags.String("source", string(guidelines.SourceAHA), "guideline source the documents belong to (AHA or GES)")
	reference := flags.Bool("reference", false, "ingest the built-in AHA and GES reference texts instead of a directory")
	watch := flags.Bool("watch", false, "keep running and re-ingest files as they change")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	source, err := guidelines.ParseSource(*sourceFlag)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	driver := optionalNeo4j(ctx, cfg, logger)
	if driver != nil {
		defer driver.Close(context.Background())
	}
	svc := ingestion.NewService(pgPool, driver, embedder, logger, cfg.Embeddings.Dimension)

	if *reference {
		results, err := svc.IngestReference(ctx)
		if err != nil {
			logger.Fatalf("reference ingestion failed: %v", err)
		}
		logger.Printf("ingested %d reference documents", len(results))
		return
	}

	logger.Printf("ingesting %s guidelines from %s using %s/%s embeddings", source, *dir, strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if *watch {
		if err := svc.Watch(ctx, source, *dir); err != nil {
			logger.Fatalf("watch failed: %v", err)
		}
		return
	}

	results, err := svc.IngestDirectory(ctx, source, *dir)
	if err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
	logger.Printf("processed %d documents", len(results))
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete ingested guideline passages from Postgres and Neo4j. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	neo4jDriver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Fatalf("neo4j connection: %v", err)
	}
	defer neo4jDriver.Close(ctx)

	svc := ingestion.NewService(pgPool, neo4jDriver, nil, logger, cfg.Embeddings.Dimension)
	if err := svc.Clear(ctx); err != nil {
		logger.Fatalf("clear failed: %v", err)
	}
	logger.Println("guideline passages removed from Postgres and Neo4j")
}

// buildInterpreter picks the canned responder or the retrieval-augmented
// model. pool and driver may be nil; without a pool the model is grounded on
// the built-in reference text only.
func buildInterpreter(ctx context.Context, cfg config.Config, logger *log.Logger, pool *pgxpool.Pool, driver neo4j.DriverWithContext, llmClient llm.Client) (interpret.Interpreter, error) {
	switch cfg.Interpreter {
	case config.InterpreterCanned:
		return interpret.NewCanned(cfg.InterpretDelay, logger), nil
	case config.InterpreterLLM:
		if llmClient == nil {
			return nil, fmt.Errorf("llm interpreter requires a configured llm provider")
		}
		var (
			vectors  interpret.VectorStore
			embedder embeddings.Embedder
		)
		if pool != nil {
			if err := database.EnsureGuidelineSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
				logger.Printf("guideline schema unavailable, answering from reference text: %v", err)
			} else if e, err := embeddings.NewEmbedder(cfg); err != nil {
				logger.Printf("embedder unavailable, answering from reference text: %v", err)
			} else {
				vectors = interpret.NewPostgresVectorStore(pool)
				embedder = e
			}
		}
		var graph interpret.GraphStore
		if vectors != nil && driver != nil {
			graph = interpret.NewNeo4jGraphStore(driver)
		}
		return interpret.NewService(vectors, graph, embedder, llmClient, logger, interpret.Config{}), nil
	default:
		return nil, fmt.Errorf("unsupported interpreter %q", cfg.Interpreter)
	}
}

func optionalNeo4j(ctx context.Context, cfg config.Config, logger *log.Logger) neo4j.DriverWithContext {
	if cfg.Neo4jURI == "" {
		return nil
	}
	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Printf("neo4j unavailable, knowledge graph sync disabled: %v", err)
		return nil
	}
	return driver
}

func printUsage() {
	fmt.Println("Usage: nexo <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API")
	fmt.Println("  ask      Answer a guideline question (use --source AHA|GES and --question)")
	fmt.Println("  ingest   Ingest guideline documents into Postgres/Neo4j (--dir, --source, --reference, --watch)")
	fmt.Println("  clear    Remove ingested guideline data from Postgres/Neo4j")
}
