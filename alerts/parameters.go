package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Parameters are the thresholds alerts are evaluated against.
type Parameters struct {
	SystolicMin  float64 `json:"pa_min"`
	SystolicMax  float64 `json:"pa_max"`
	HeartRateMin float64 `json:"fc_min"`
	HeartRateMax float64 `json:"fc_max"`
	WeightDelta  float64 `json:"peso_delta"`
}

func DefaultParameters() Parameters {
	return Parameters{
		SystolicMin:  90,
		SystolicMax:  180,
		HeartRateMin: 50,
		HeartRateMax: 120,
		WeightDelta:  2,
	}
}

// ParameterUpdate changes only the fields that are set.
type ParameterUpdate struct {
	SystolicMin  *float64 `json:"pa_min,omitempty"`
	SystolicMax  *float64 `json:"pa_max,omitempty"`
	HeartRateMin *float64 `json:"fc_min,omitempty"`
	HeartRateMax *float64 `json:"fc_max,omitempty"`
	WeightDelta  *float64 `json:"peso_delta,omitempty"`
	UpdatedBy    string   `json:"updated_by"`
}

// AuditEntry records who changed the parameters and from what.
type AuditEntry struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	UpdatedBy string             `json:"updated_by"`
	Previous  Parameters         `json:"previous_values"`
	Changes   map[string]float64 `json:"new_values"`
}

var ErrInvalidParameters = errors.New("invalid clinical parameters")

// Apply returns p with the update applied and the changed fields keyed by
// their JSON name.
func (u ParameterUpdate) Apply(p Parameters) (Parameters, map[string]float64, error) {
	changes := make(map[string]float64)
	set := func(name string, dst *float64, value *float64) {
		if value != nil {
			*dst = *value
			changes[name] = *value
		}
	}
	set("pa_min", &p.SystolicMin, u.SystolicMin)
	set("pa_max", &p.SystolicMax, u.SystolicMax)
	set("fc_min", &p.HeartRateMin, u.HeartRateMin)
	set("fc_max", &p.HeartRateMax, u.HeartRateMax)
	set("peso_delta", &p.WeightDelta, u.WeightDelta)

	if err := p.validate(); err != nil {
		return Parameters{}, nil, err
	}
	return p, changes, nil
}

func (p Parameters) validate() error {
	if p.SystolicMin >= p.SystolicMax {
		return fmt.Errorf("%w: pa_min must be below pa_max", ErrInvalidParameters)
	}
	if p.HeartRateMin >= p.HeartRateMax {
		return fmt.Errorf("%w: fc_min must be below fc_max", ErrInvalidParameters)
	}
	if p.WeightDelta < 0 {
		return fmt.Errorf("%w: peso_delta must not be negative", ErrInvalidParameters)
	}
	return nil
}

type ParameterStore interface {
	Get(ctx context.Context) (Parameters, error)
	Update(ctx context.Context, update ParameterUpdate) (Parameters, error)
	Audit(ctx context.Context) ([]AuditEntry, error)
}

type MemoryParameterStore struct {
	mu     sync.RWMutex
	params Parameters
	audit  []AuditEntry
}

func NewMemoryParameterStore() *MemoryParameterStore {
	return &MemoryParameterStore{params: DefaultParameters()}
}

func (s *MemoryParameterStore) Get(_ context.Context) (Parameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params, nil
}

func (s *MemoryParameterStore) Update(_ context.Context, update ParameterUpdate) (Parameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changes, err := update.Apply(s.params)
	if err != nil {
		return Parameters{}, err
	}
	s.audit = append(s.audit, AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UpdatedBy: update.UpdatedBy,
		Previous:  s.params,
		Changes:   changes,
	})
	s.params = next
	return next, nil
}

func (s *MemoryParameterStore) Audit(_ context.Context) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AuditEntry{}, s.audit...), nil
}

// PostgresParameterStore keeps a single parameter row plus an audit log in
// the tables created by database.EnsureCareSchema.
type PostgresParameterStore struct {
	pool *pgxpool.Pool
}

func NewPostgresParameterStore(pool *pgxpool.Pool) *PostgresParameterStore {
	return &PostgresParameterStore{pool: pool}
}

func (s *PostgresParameterStore) Get(ctx context.Context) (Parameters, error) {
	return getParameters(ctx, s.pool)
}

func (s *PostgresParameterStore) Update(ctx context.Context, update ParameterUpdate) (params Parameters, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return Parameters{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	previous, err := getParameters(ctx, tx)
	if err != nil {
		return Parameters{}, err
	}
	next, changes, err := update.Apply(previous)
	if err != nil {
		return Parameters{}, err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO guideline_parameters (id, pa_min, pa_max, fc_min, fc_max, peso_delta, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE
		SET pa_min = EXCLUDED.pa_min,
		    pa_max = EXCLUDED.pa_max,
		    fc_min = EXCLUDED.fc_min,
		    fc_max = EXCLUDED.fc_max,
		    peso_delta = EXCLUDED.peso_delta,
		    updated_at = NOW()
	`, next.SystolicMin, next.SystolicMax, next.HeartRateMin, next.HeartRateMax, next.WeightDelta); err != nil {
		return Parameters{}, fmt.Errorf("upsert parameters: %w", err)
	}

	entry, err := json.Marshal(map[string]any{"previous_values": previous, "new_values": changes})
	if err != nil {
		return Parameters{}, fmt.Errorf("marshal audit entry: %w", err)
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO parameter_audit_log (id, timestamp, updated_by, updates)
		VALUES ($1, NOW(), $2, $3)
	`, uuid.New(), update.UpdatedBy, entry); err != nil {
		return Parameters{}, fmt.Errorf("insert audit entry: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return Parameters{}, fmt.Errorf("commit transaction: %w", err)
	}
	return next, nil
}

func (s *PostgresParameterStore) Audit(ctx context.Context) ([]AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, timestamp, updated_by, updates
		FROM parameter_audit_log
		ORDER BY timestamp
	`)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditEntry, 0)
	for rows.Next() {
		var (
			entry AuditEntry
			raw   []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.UpdatedBy, &raw); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		var body struct {
			Previous Parameters         `json:"previous_values"`
			Changes  map[string]float64 `json:"new_values"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		entry.Previous = body.Previous
		entry.Changes = body.Changes
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// getParameters falls back to the defaults until the first update stores
// a row.
func getParameters(ctx context.Context, db queryRower) (Parameters, error) {
	var p Parameters
	err := db.QueryRow(ctx, `
		SELECT pa_min, pa_max, fc_min, fc_max, peso_delta
		FROM guideline_parameters
		WHERE id = 1
	`).Scan(&p.SystolicMin, &p.SystolicMax, &p.HeartRateMin, &p.HeartRateMax, &p.WeightDelta)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultParameters(), nil
		}
		return Parameters{}, fmt.Errorf("query parameters: %w", err)
	}
	return p, nil
}

var (
	_ ParameterStore = (*MemoryParameterStore)(nil)
	_ ParameterStore = (*PostgresParameterStore)(nil)
)
