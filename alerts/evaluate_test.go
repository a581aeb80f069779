package alerts_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/fabfab/nexo/alerts"
	"github.com/fabfab/nexo/patients"
)

func reading(weight, systolic, heartRate float64, symptoms ...string) patients.Measurement {
	return patients.Measurement{WeightKg: weight, Systolic: systolic, Diastolic: 80, HeartRate: heartRate, Symptoms: symptoms}
}

func TestEvaluateNoMeasurements(t *testing.T) {
	got := alerts.Evaluate(patients.Patient{ID: "p"}, alerts.DefaultParameters())
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty alert list, got %#v", got)
	}
}

func TestEvaluateStableReading(t *testing.T) {
	p := patients.Patient{Measurements: []patients.Measurement{reading(80, 120, 70), reading(81, 125, 72)}}
	if got := alerts.Evaluate(p, alerts.DefaultParameters()); len(got) != 0 {
		t.Fatalf("expected no alerts, got %+v", got)
	}
}

func TestEvaluateRules(t *testing.T) {
	p := patients.Patient{Measurements: []patients.Measurement{
		reading(80, 120, 70),
		reading(82, 100, 90),
		reading(83.5, 185, 130, "Dolor torácico", "disnea"),
	}}

	got := alerts.Evaluate(p, alerts.DefaultParameters())
	want := []alerts.Alert{
		{Message: "Weight increase of 3.5 kg detected. Check for fluid retention.", Level: alerts.LevelYellow},
		{Message: "Elevated systolic pressure: 185 mmHg.", Level: alerts.LevelRed},
		{Message: "Elevated heart rate: 130 bpm.", Level: alerts.LevelRed},
		{Message: "Chest pain detected. Evaluate possible ischemia.", Level: alerts.LevelRed},
		{Message: "Dyspnea reported. Check for possible congestion signs.", Level: alerts.LevelYellow},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d alerts, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("alert %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEvaluateLowValues(t *testing.T) {
	p := patients.Patient{Measurements: []patients.Measurement{reading(70, 85, 45, "shortness of breath")}}
	got := alerts.Evaluate(p, alerts.DefaultParameters())
	if len(got) != 3 {
		t.Fatalf("expected 3 alerts, got %+v", got)
	}
	if got[0].Message != "Low systolic pressure: 85 mmHg." || got[1].Message != "Low heart rate: 45 bpm." {
		t.Fatalf("unexpected messages: %+v", got)
	}
	if got[2].Level != alerts.LevelYellow {
		t.Fatalf("dyspnea should be yellow: %+v", got[2])
	}
}

func TestEvaluateUsesParameters(t *testing.T) {
	p := patients.Patient{Measurements: []patients.Measurement{reading(70, 150, 70)}}
	params := alerts.DefaultParameters()
	params.SystolicMax = 140
	if got := alerts.Evaluate(p, params); len(got) != 1 || got[0].Level != alerts.LevelRed {
		t.Fatalf("expected one red alert with tighter threshold, got %+v", got)
	}
}

func TestFollowUp(t *testing.T) {
	if got := alerts.FollowUp(nil); !strings.HasPrefix(got, "First check-up in 7-14 days") {
		t.Fatalf("unexpected standard plan %q", got)
	}
	if got := alerts.FollowUp([]alerts.Alert{{Level: alerts.LevelYellow}}); !strings.HasPrefix(got, "First check-up") {
		t.Fatalf("yellow alerts should keep the standard plan, got %q", got)
	}
	if got := alerts.FollowUp([]alerts.Alert{{Level: alerts.LevelRed}}); got != "Urgent check-up in 7 days; intensive follow-up." {
		t.Fatalf("unexpected urgent plan %q", got)
	}
}

func TestParameterUpdateApply(t *testing.T) {
	maxSystolic := 160.0
	delta := 1.5
	next, changes, err := alerts.ParameterUpdate{SystolicMax: &maxSystolic, WeightDelta: &delta, UpdatedBy: "dr"}.Apply(alerts.DefaultParameters())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.SystolicMax != 160 || next.WeightDelta != 1.5 || next.SystolicMin != 90 {
		t.Fatalf("unexpected parameters %+v", next)
	}
	if len(changes) != 2 || changes["pa_max"] != 160 || changes["peso_delta"] != 1.5 {
		t.Fatalf("unexpected changes %+v", changes)
	}

	bad := 50.0
	if _, _, err := (alerts.ParameterUpdate{SystolicMax: &bad}).Apply(alerts.DefaultParameters()); !errors.Is(err, alerts.ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters, got %v", err)
	}
}
