// Package alerts turns patient measurements into clinical alerts and acts
// on the critical ones.
package alerts

import (
	"fmt"
	"strings"

	"github.com/fabfab/nexo/patients"
)

type Level string

const (
	LevelYellow Level = "yellow"
	LevelRed    Level = "red"
)

type Alert struct {
	Message string `json:"mensaje"`
	Level   Level  `json:"nivel"`
}

const (
	urgentFollowUp   = "Urgent check-up in 7 days; intensive follow-up."
	standardFollowUp = "First check-up in 7-14 days; then monthly check-ups for 3 months and every 3-6 months based on stability."
)

// Evaluate checks the latest measurement against params. Weight gain is
// measured against the first recorded measurement.
func Evaluate(patient patients.Patient, params Parameters) []Alert {
	alerts := make([]Alert, 0)
	latest, ok := patient.Latest()
	if !ok {
		return alerts
	}

	if len(patient.Measurements) > 1 {
		delta := latest.WeightKg - patient.Measurements[0].WeightKg
		if delta > params.WeightDelta {
			alerts = append(alerts, Alert{
				Message: fmt.Sprintf("Weight increase of %.1f kg detected. Check for fluid retention.", delta),
				Level:   LevelYellow,
			})
		}
	}

	switch {
	case latest.Systolic < params.SystolicMin:
		alerts = append(alerts, Alert{Message: fmt.Sprintf("Low systolic pressure: %g mmHg.", latest.Systolic), Level: LevelRed})
	case latest.Systolic > params.SystolicMax:
		alerts = append(alerts, Alert{Message: fmt.Sprintf("Elevated systolic pressure: %g mmHg.", latest.Systolic), Level: LevelRed})
	}

	switch {
	case latest.HeartRate > params.HeartRateMax:
		alerts = append(alerts, Alert{Message: fmt.Sprintf("Elevated heart rate: %g bpm.", latest.HeartRate), Level: LevelRed})
	case latest.HeartRate < params.HeartRateMin:
		alerts = append(alerts, Alert{Message: fmt.Sprintf("Low heart rate: %g bpm.", latest.HeartRate), Level: LevelRed})
	}

	if hasSymptom(latest.Symptoms, "dolor torácico", "chest pain") {
		alerts = append(alerts, Alert{Message: "Chest pain detected. Evaluate possible ischemia.", Level: LevelRed})
	}
	if hasSymptom(latest.Symptoms, "disnea", "shortness of breath") {
		alerts = append(alerts, Alert{Message: "Dyspnea reported. Check for possible congestion signs.", Level: LevelYellow})
	}

	return alerts
}

// FollowUp returns the post-discharge check-up schedule for a set of alerts.
func FollowUp(alerts []Alert) string {
	if HasCritical(alerts) {
		return urgentFollowUp
	}
	return standardFollowUp
}

func HasCritical(alerts []Alert) bool {
	for _, a := range alerts {
		if a.Level == LevelRed {
			return true
		}
	}
	return false
}

// Summary joins alert messages with sep.
func Summary(alerts []Alert, sep string) string {
	messages := make([]string, len(alerts))
	for i, a := range alerts {
		messages[i] = a.Message
	}
	return strings.Join(messages, sep)
}

func hasSymptom(symptoms []string, names ...string) bool {
	for _, s := range symptoms {
		s = strings.ToLower(strings.TrimSpace(s))
		for _, name := range names {
			if s == name {
				return true
			}
		}
	}
	return false
}
