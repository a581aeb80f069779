package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/nexo/knowledge"
	"github.com/fabfab/nexo/llm"
	"github.com/fabfab/nexo/metrics"
	"github.com/fabfab/nexo/notify"
	"github.com/fabfab/nexo/patients"
)

const (
	alertMessageMaxTokens    = 300
	recommendationsMaxTokens = 800

	ActionNotified    = "AI-generated WhatsApp notification sent"
	ActionNotNotified = "Critical alert detected; WhatsApp notification not delivered"
)

// InterventionRecorder mirrors interventions outside the patient store.
// *knowledge.Graph satisfies it.
type InterventionRecorder interface {
	RecordIntervention(ctx context.Context, in knowledge.Intervention) error
}

type Service struct {
	patients patients.Store
	params   ParameterStore
	llm      llm.Client
	sender   notify.Sender
	recorder InterventionRecorder
	logger   *log.Logger
}

// NewService wires the alert flow. llmClient, sender and recorder may be
// nil; the flow then uses fallback texts, skips delivery or skips the graph.
func NewService(store patients.Store, params ParameterStore, llmClient llm.Client, sender notify.Sender, recorder InterventionRecorder, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		patients: store,
		params:   params,
		llm:      llmClient,
		sender:   sender,
		recorder: recorder,
		logger:   logger,
	}
}

// Evaluate returns the patient's current alerts without side effects.
func (s *Service) Evaluate(ctx context.Context, patientID string) ([]Alert, patients.Patient, error) {
	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, patients.Patient{}, err
	}
	params, err := s.params.Get(ctx)
	if err != nil {
		return nil, patients.Patient{}, fmt.Errorf("load parameters: %w", err)
	}
	return Evaluate(patient, params), patient, nil
}

// Check evaluates the patient and, when a red alert is present, notifies
// the patient and records the intervention.
func (s *Service) Check(ctx context.Context, patientID string) ([]Alert, error) {
	alerts, patient, err := s.Evaluate(ctx, patientID)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		metrics.IncAlert(string(a.Level))
	}
	if !HasCritical(alerts) {
		return alerts, nil
	}

	message := s.alertMessage(ctx, patient, alerts)
	action := ActionNotNotified
	if s.notify(ctx, patient, message) {
		action = ActionNotified
	}

	in, err := s.patients.AddIntervention(ctx, patient.ID, patients.Intervention{
		Action: action,
		Alerts: Summary(alerts, "; "),
	})
	if err != nil {
		return alerts, fmt.Errorf("record intervention: %w", err)
	}

	if s.recorder != nil {
		if err := s.recorder.RecordIntervention(ctx, knowledge.Intervention{
			ID:          in.ID,
			PatientID:   patient.ID,
			PatientName: patient.Name,
			Timestamp:   in.Timestamp,
			Action:      in.Action,
			Alerts:      in.Alerts,
		}); err != nil {
			s.logger.Printf("record intervention in graph for %s: %v", patient.ID, err)
		}
	}

	return alerts, nil
}

// FollowUpPlan returns the check-up schedule for the patient's current
// state.
func (s *Service) FollowUpPlan(ctx context.Context, patientID string) (string, error) {
	alerts, _, err := s.Evaluate(ctx, patientID)
	if err != nil {
		return "", err
	}
	return FollowUp(alerts), nil
}

func (s *Service) notify(ctx context.Context, patient patients.Patient, message string) bool {
	if s.sender == nil || patient.Phone == "" {
		s.logger.Printf("skip whatsapp notification for %s: no sender or phone", patient.ID)
		metrics.IncNotification(metrics.OutcomeSkipped)
		return false
	}
	if err := s.sender.Send(ctx, patient.Phone, message); err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			metrics.IncNotification(metrics.OutcomeSkipped)
		} else {
			metrics.IncNotification(metrics.OutcomeError)
		}
		s.logger.Printf("whatsapp notification for %s: %v", patient.ID, err)
		return false
	}
	metrics.IncNotification(metrics.OutcomeOK)
	s.logger.Printf("whatsapp notification sent to %s", patient.Phone)
	return true
}

func (s *Service) alertMessage(ctx context.Context, patient patients.Patient, alerts []Alert) string {
	fallback := fmt.Sprintf("ALERTA: %s. Por favor contacte a su médico lo antes posible.", Summary(alerts, ", "))
	if s.llm == nil {
		return fallback
	}

	described := make([]string, len(alerts))
	for i, a := range alerts {
		described[i] = fmt.Sprintf("%s (Level: %s)", a.Message, a.Level)
	}

	prompt := fmt.Sprintf(`You are a medical assistant for Nexo+, a platform that helps cardiac patients after discharge.

Patient information:
- Name: %s
- Age: %d

The following alerts have been detected:
%s

Generate a personalized, empathetic WhatsApp message for this patient that clearly communicates the medical concern without causing panic, gives specific advice based on the alerts and encourages them to contact their healthcare provider if needed. Use a warm, supportive tone and at most 3-4 sentences.

The message should be in Spanish, as this is for patients in Chile.`, patient.Name, patient.Age, strings.Join(described, ", "))

	message, err := s.llm.Complete(ctx, llm.SystemPrompt(prompt, alertMessageMaxTokens))
	if err != nil || strings.TrimSpace(message) == "" {
		s.logger.Printf("generate alert message for %s: %v", patient.ID, err)
		return fallback
	}
	return strings.TrimSpace(message)
}

// FallbackRecommendations are served when the model is unavailable or its
// answer cannot be parsed.
func FallbackRecommendations() map[string]string {
	return map[string]string{
		"medicamentos":     "Tome sus medicamentos según lo prescrito por su médico.",
		"dieta":            "Siga una dieta baja en sodio y grasas saturadas.",
		"actividad_fisica": "Realice actividad física moderada según las recomendaciones de su médico.",
		"monitoreo":        "Registre sus síntomas y mediciones regularmente en la aplicación Nexo+.",
	}
}

// Recommendations asks the model for adherence advice keyed by category.
func (s *Service) Recommendations(ctx context.Context, patientID string) (map[string]string, error) {
	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if s.llm == nil {
		return FallbackRecommendations(), nil
	}

	answer, err := s.llm.Complete(ctx, llm.SystemPrompt(recommendationsPrompt(patient), recommendationsMaxTokens))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Printf("generate recommendations for %s: %v", patient.ID, err)
		return FallbackRecommendations(), nil
	}

	parsed := ParseRecommendations(answer)
	if len(parsed) == 0 {
		return FallbackRecommendations(), nil
	}
	return parsed, nil
}

func recommendationsPrompt(patient patients.Patient) string {
	var b strings.Builder
	b.WriteString("You are a cardiac care specialist helping patients after myocardial infarction.\n\n")
	fmt.Fprintf(&b, "Patient information:\n- Name: %s\n- Age: %d\n", patient.Name, patient.Age)

	if latest, ok := patient.Latest(); ok {
		symptoms := "None"
		if len(latest.Symptoms) > 0 {
			symptoms = strings.Join(latest.Symptoms, ", ")
		}
		fmt.Fprintf(&b, "- Latest measurements:\n  - Weight: %g kg\n  - Blood pressure: %g/%g mmHg\n  - Heart rate: %g bpm\n- Reported symptoms: %s\n",
			latest.WeightKg, latest.Systolic, latest.Diastolic, latest.HeartRate, symptoms)
	}

	b.WriteString(`
Generate personalized recommendations for this post-myocardial infarction patient in these categories: medicamentos, dieta, actividad_fisica, monitoreo.
Each category should have 2-3 specific, actionable recommendations aligned with AHA and GES guidelines for post-MI care.
Answer with a JSON object whose keys are the categories and whose values are the recommendations as a single string.
The recommendations should be in Spanish, as this is for patients in Chile.`)
	return b.String()
}

// ParseRecommendations accepts either a JSON object of strings or the
// looser `"key": "value"` lines models tend to produce.
func ParseRecommendations(text string) map[string]string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var strict map[string]string
	if err := json.Unmarshal([]byte(text), &strict); err == nil && len(strict) > 0 {
		return strict
	}

	result := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, `"`) {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), `":`)
		value = strings.TrimSpace(value)
		value = strings.TrimSuffix(value, ",")
		value = strings.Trim(value, `"`)
		if key != "" && value != "" {
			result[key] = value
		}
	}
	return result
}
