package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"INTERPRETER", "INTERPRET_DELAY", "STORAGE", "EMBEDDING_DIMENSION", "EMBEDDING_BATCH_SIZE", "LLM_PROVIDER", "LLM_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Interpreter != InterpreterCanned {
		t.Fatalf("expected canned interpreter, got %q", cfg.Interpreter)
	}
	if cfg.Storage != StorageMemory {
		t.Fatalf("expected memory storage, got %q", cfg.Storage)
	}
	if cfg.InterpretDelay != 0 {
		t.Fatalf("expected no delay, got %s", cfg.InterpretDelay)
	}
	if cfg.Embeddings.Dimension != 768 {
		t.Fatalf("expected dimension 768, got %d", cfg.Embeddings.Dimension)
	}
	if cfg.LLM.Provider != ProviderOllama {
		t.Fatalf("expected ollama provider, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Timeout != time.Minute {
		t.Fatalf("expected 1m llm timeout, got %s", cfg.LLM.Timeout)
	}
	if cfg.Embeddings.BatchSize != 32 {
		t.Fatalf("expected batch size 32, got %d", cfg.Embeddings.BatchSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("INTERPRETER", "LLM")
	t.Setenv("INTERPRET_DELAY", "2000")
	t.Setenv("EMBEDDING_DIMENSION", "1536")
	t.Setenv("LLM_PROVIDER", "OpenAI")

	cfg := Load()
	if cfg.Interpreter != InterpreterLLM {
		t.Fatalf("expected llm interpreter, got %q", cfg.Interpreter)
	}
	if cfg.InterpretDelay != 2*time.Second {
		t.Fatalf("expected 2s delay, got %s", cfg.InterpretDelay)
	}
	if cfg.Embeddings.Dimension != 1536 {
		t.Fatalf("expected dimension 1536, got %d", cfg.Embeddings.Dimension)
	}
	if cfg.LLM.Provider != ProviderOpenAI {
		t.Fatalf("expected openai provider, got %q", cfg.LLM.Provider)
	}
}

func TestGetEnvDurationParsesGoSyntax(t *testing.T) {
	t.Setenv("NEXO_TEST_DELAY", "1500ms")
	if got := getEnvDuration("NEXO_TEST_DELAY", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %s", got)
	}

	t.Setenv("NEXO_TEST_DELAY", "soon")
	if got := getEnvDuration("NEXO_TEST_DELAY", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
}
