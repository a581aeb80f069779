package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStore keeps patients in the tables created by
// database.EnsureCareSchema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, patient Patient) (created Patient, err error) {
	if err := patient.validate(); err != nil {
		return Patient{}, err
	}
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Patient{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `
		INSERT INTO patients (id, nombre, edad, telefono, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NOW())
	`, patient.ID, patient.Name, patient.Age, patient.Phone); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Patient{}, ErrAlreadyExists
		}
		return Patient{}, fmt.Errorf("insert patient: %w", err)
	}

	for i, m := range patient.Measurements {
		if err = m.validate(); err != nil {
			return Patient{}, err
		}
		if patient.Measurements[i], err = insertMeasurement(ctx, tx, patient.ID, m); err != nil {
			return Patient{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return Patient{}, fmt.Errorf("commit transaction: %w", err)
	}

	patient.Interventions = nil
	return s.Get(ctx, patient.ID)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Patient, error) {
	var patient Patient
	var phone *string
	err := s.pool.QueryRow(ctx, "SELECT id, nombre, edad, telefono FROM patients WHERE id = $1", id).
		Scan(&patient.ID, &patient.Name, &patient.Age, &phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Patient{}, ErrNotFound
		}
		return Patient{}, fmt.Errorf("query patient: %w", err)
	}
	if phone != nil {
		patient.Phone = *phone
	}

	if patient.Measurements, err = s.measurements(ctx, id); err != nil {
		return Patient{}, err
	}
	if patient.Interventions, err = s.interventions(ctx, id); err != nil {
		return Patient{}, err
	}
	return patient, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Patient, error) {
	rows, err := s.pool.Query(ctx, "SELECT id FROM patients ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect patient ids: %w", err)
	}

	result := make([]Patient, 0, len(ids))
	for _, id := range ids {
		patient, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, patient)
	}
	return result, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, patient Patient) (Patient, error) {
	if err := patient.validate(); err != nil {
		return Patient{}, err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE patients
		SET nombre = $2,
		    edad = $3,
		    telefono = NULLIF($4, '')
		WHERE id = $1
	`, id, patient.Name, patient.Age, patient.Phone)
	if err != nil {
		return Patient{}, fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Patient{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM patients WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddMeasurement(ctx context.Context, id string, m Measurement) (Measurement, error) {
	if err := m.validate(); err != nil {
		return Measurement{}, err
	}
	if err := s.ensureExists(ctx, id); err != nil {
		return Measurement{}, err
	}
	return insertMeasurement(ctx, s.pool, id, m)
}

func (s *PostgresStore) AddIntervention(ctx context.Context, id string, in Intervention) (Intervention, error) {
	if err := s.ensureExists(ctx, id); err != nil {
		return Intervention{}, err
	}
	if _, err := uuid.Parse(in.ID); err != nil {
		in.ID = uuid.NewString()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO interventions (id, patient_id, timestamp, action, alerts, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, in.ID, id, in.Timestamp, in.Action, in.Alerts); err != nil {
		return Intervention{}, fmt.Errorf("insert intervention: %w", err)
	}
	return in, nil
}

func (s *PostgresStore) ensureExists(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM patients WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("check patient: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// measurements and interventions come back in insertion order, the same
// order MemoryStore keeps, whatever timestamps the client sent.
func (s *PostgresStore) measurements(ctx context.Context, id string) ([]Measurement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, timestamp, peso, presion_sistolica, presion_diastolica, frecuencia_cardiaca, sintomas
		FROM measurements
		WHERE patient_id = $1
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	result := make([]Measurement, 0)
	for rows.Next() {
		var m Measurement
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.WeightKg, &m.Systolic, &m.Diastolic, &m.HeartRate, &m.Symptoms); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurements: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) interventions(ctx context.Context, id string) ([]Intervention, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, timestamp, action, alerts
		FROM interventions
		WHERE patient_id = $1
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query interventions: %w", err)
	}
	defer rows.Close()

	result := make([]Intervention, 0)
	for rows.Next() {
		var in Intervention
		if err := rows.Scan(&in.ID, &in.Timestamp, &in.Action, &in.Alerts); err != nil {
			return nil, fmt.Errorf("scan intervention: %w", err)
		}
		result = append(result, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interventions: %w", err)
	}
	return result, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertMeasurement(ctx context.Context, db execer, patientID string, m Measurement) (Measurement, error) {
	if _, err := uuid.Parse(m.ID); err != nil {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	symptoms := m.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}

	if _, err := db.Exec(ctx, `
		INSERT INTO measurements (id, patient_id, timestamp, peso, presion_sistolica, presion_diastolica, frecuencia_cardiaca, sintomas, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, m.ID, patientID, m.Timestamp, m.WeightKg, m.Systolic, m.Diastolic, m.HeartRate, symptoms); err != nil {
		return Measurement{}, fmt.Errorf("insert measurement: %w", err)
	}
	return m, nil
}

var _ Store = (*PostgresStore)(nil)
