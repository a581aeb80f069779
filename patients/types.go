// Package patients stores post-discharge patients together with their
// measurement and intervention history.
package patients

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("patient not found")
	ErrAlreadyExists = errors.New("patient already exists")
	ErrInvalid       = errors.New("invalid patient data")
)

// Measurement is one home reading reported by a patient.
type Measurement struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	WeightKg  float64   `json:"peso"`
	Systolic  float64   `json:"presion_sistolica"`
	Diastolic float64   `json:"presion_diastolica"`
	HeartRate float64   `json:"frecuencia_cardiaca"`
	Symptoms  []string  `json:"sintomas,omitempty"`
}

// Intervention records an action taken on a patient's behalf, such as an
// alert notification.
type Intervention struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Alerts    string    `json:"alerts"`
}

type Patient struct {
	ID            string         `json:"id"`
	Name          string         `json:"nombre"`
	Age           int            `json:"edad"`
	Phone         string         `json:"telefono,omitempty"`
	Measurements  []Measurement  `json:"measurements"`
	Interventions []Intervention `json:"intervention_history"`
}

// Latest returns the last measurement added to the store. Readings keep
// insertion order, so a backdated reading still counts as the latest.
func (p Patient) Latest() (Measurement, bool) {
	if len(p.Measurements) == 0 {
		return Measurement{}, false
	}
	return p.Measurements[len(p.Measurements)-1], true
}

func (p Patient) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: nombre is required", ErrInvalid)
	}
	if p.Age < 0 {
		return fmt.Errorf("%w: edad must not be negative", ErrInvalid)
	}
	return nil
}

func (m Measurement) validate() error {
	if m.WeightKg <= 0 || m.Systolic <= 0 || m.Diastolic <= 0 || m.HeartRate <= 0 {
		return fmt.Errorf("%w: peso, presion_sistolica, presion_diastolica and frecuencia_cardiaca must be positive", ErrInvalid)
	}
	return nil
}

func (p Patient) clone() Patient {
	out := p
	out.Measurements = make([]Measurement, len(p.Measurements))
	for i, m := range p.Measurements {
		m.Symptoms = append([]string(nil), m.Symptoms...)
		out.Measurements[i] = m
	}
	out.Interventions = append([]Intervention{}, p.Interventions...)
	return out
}
