package patients

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Store interface {
	Create(ctx context.Context, patient Patient) (Patient, error)
	Get(ctx context.Context, id string) (Patient, error)
	List(ctx context.Context) ([]Patient, error)
	// Update replaces a patient's profile; measurement and intervention
	// history are kept.
	Update(ctx context.Context, id string, patient Patient) (Patient, error)
	Delete(ctx context.Context, id string) error
	AddMeasurement(ctx context.Context, id string, m Measurement) (Measurement, error)
	AddIntervention(ctx context.Context, id string, in Intervention) (Intervention, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	patients map[string]Patient
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients: make(map[string]Patient),
		now:      time.Now,
	}
}

// Create stores a new patient. Embedded measurements are validated and
// stamped; intervention history is only written by AddIntervention.
func (s *MemoryStore) Create(_ context.Context, patient Patient) (Patient, error) {
	if err := patient.validate(); err != nil {
		return Patient{}, err
	}
	for _, m := range patient.Measurements {
		if err := m.validate(); err != nil {
			return Patient{}, err
		}
	}
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[patient.ID]; ok {
		return Patient{}, ErrAlreadyExists
	}
	patient = patient.clone()
	patient.Interventions = []Intervention{}
	for i := range patient.Measurements {
		patient.Measurements[i] = s.stampMeasurement(patient.Measurements[i])
	}
	s.patients[patient.ID] = patient
	return patient.clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	patient, ok := s.patients[id]
	if !ok {
		return Patient{}, ErrNotFound
	}
	return patient.clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Patient, 0, len(s.patients))
	for _, patient := range s.patients {
		result = append(result, patient.clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, patient Patient) (Patient, error) {
	if err := patient.validate(); err != nil {
		return Patient{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.patients[id]
	if !ok {
		return Patient{}, ErrNotFound
	}
	existing.Name = patient.Name
	existing.Age = patient.Age
	existing.Phone = patient.Phone
	s.patients[id] = existing
	return existing.clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[id]; !ok {
		return ErrNotFound
	}
	delete(s.patients, id)
	return nil
}

func (s *MemoryStore) AddMeasurement(_ context.Context, id string, m Measurement) (Measurement, error) {
	if err := m.validate(); err != nil {
		return Measurement{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	patient, ok := s.patients[id]
	if !ok {
		return Measurement{}, ErrNotFound
	}
	m = s.stampMeasurement(m)
	m.Symptoms = append([]string(nil), m.Symptoms...)
	patient.Measurements = append(patient.Measurements, m)
	s.patients[id] = patient
	return m, nil
}

func (s *MemoryStore) AddIntervention(_ context.Context, id string, in Intervention) (Intervention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	patient, ok := s.patients[id]
	if !ok {
		return Intervention{}, ErrNotFound
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = s.now().UTC()
	}
	patient.Interventions = append(patient.Interventions, in)
	s.patients[id] = patient
	return in, nil
}

func (s *MemoryStore) stampMeasurement(m Measurement) Measurement {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now().UTC()
	}
	return m
}

var _ Store = (*MemoryStore)(nil)
