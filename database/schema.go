package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func EnsureCareSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS patients (
			id TEXT PRIMARY KEY,
			nombre TEXT NOT NULL,
			edad INT NOT NULL,
			telefono TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS measurements (
			id UUID PRIMARY KEY,
			patient_id TEXT NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
			timestamp TIMESTAMPTZ NOT NULL,
			peso DOUBLE PRECISION NOT NULL,
			presion_sistolica DOUBLE PRECISION NOT NULL,
			presion_diastolica DOUBLE PRECISION NOT NULL,
			frecuencia_cardiaca DOUBLE PRECISION NOT NULL,
			sintomas TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		"ALTER TABLE measurements ADD COLUMN IF NOT EXISTS seq BIGSERIAL",
		"CREATE INDEX IF NOT EXISTS idx_measurements_patient_seq ON measurements(patient_id, seq)",
		`CREATE TABLE IF NOT EXISTS interventions (
			id UUID PRIMARY KEY,
			patient_id TEXT NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
			timestamp TIMESTAMPTZ NOT NULL,
			action TEXT NOT NULL,
			alerts TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		"ALTER TABLE interventions ADD COLUMN IF NOT EXISTS seq BIGSERIAL",
		"CREATE INDEX IF NOT EXISTS idx_interventions_patient_seq ON interventions(patient_id, seq)",
		`CREATE TABLE IF NOT EXISTS guideline_parameters (
			id INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			pa_min DOUBLE PRECISION NOT NULL,
			pa_max DOUBLE PRECISION NOT NULL,
			fc_min DOUBLE PRECISION NOT NULL,
			fc_max DOUBLE PRECISION NOT NULL,
			peso_delta DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS parameter_audit_log (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			updated_by TEXT NOT NULL,
			updates JSONB NOT NULL
		)`,
	}

	return execAll(ctx, pool, stmts)
}

func EnsureGuidelineSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS guideline_documents (
			id UUID PRIMARY KEY,
			source TEXT NOT NULL,
			source_path TEXT NOT NULL,
			title TEXT,
			sha256 TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(source, source_path)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS guideline_passages (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES guideline_documents(id) ON DELETE CASCADE,
			source TEXT NOT NULL,
			passage_index INT NOT NULL,
			topic TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(document_id, passage_index)
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_guideline_passages_source ON guideline_passages(source)",
		"CREATE INDEX IF NOT EXISTS idx_guideline_passages_embedding ON guideline_passages USING ivfflat (embedding vector_l2_ops)",
	}

	return execAll(ctx, pool, stmts)
}

func execAll(ctx context.Context, pool *pgxpool.Pool, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}
