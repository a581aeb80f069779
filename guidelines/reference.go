package guidelines

import "strings"

var referenceTexts = map[Source]string{
	SourceAHA: `AHA: Post-AMI Recommendations:
• BP <130/80 mmHg (minimum <140/90).
• Beta-blockers: HR 50-70 bpm, prolonged use based on condition.
• LDL <70 mg/dL; consider additional therapies if 55–69 mg/dL.
• HbA1c ~7% in diabetics.
• Echocardiogram 6–12 weeks; consider ICD if LVEF ≤35%.
• Intensive initial follow-up.
• Dual antiplatelet therapy for at least 12 months.
• ACE inhibitors or ARBs for patients with LVEF <40%.
• Statins for all patients regardless of baseline LDL levels.
• Cardiac rehabilitation program enrollment.
• Smoking cessation counseling and support.
• Depression screening and treatment if needed.
• Regular follow-up visits: 2 weeks, 1 month, 3 months, 6 months, and 1 year.`,
	SourceGES: `GES (Chile): Post-AMI/HF Recommendations:
• First check-up in 7–14 days; initial monthly check-ups, spaced after stabilization.
• Early cardiac rehabilitation (minimum 15 sessions in 2 months).
• Focus on adherence, low-sodium diet, and moderate activity.
• Education in self-care and symptom awareness.
• Guaranteed access to medications through GES program.
• Echocardiogram within first month post-discharge.
• Stress test before 3 months if indicated.
• Psychological support for patients and families.
• Nutritional counseling with focus on Mediterranean diet.
• Smoking cessation program enrollment.
• Regular monitoring of blood pressure, heart rate, and weight.
• Alert system for early detection of decompensation signs.`,
}

// Reference returns the full recommendation text for a source, or an empty
// string for an unknown source.
func Reference(source Source) string {
	return referenceTexts[source]
}

// Topic classifies a guideline bullet point by subject.
type Topic string

const (
	TopicGeneral        Topic = "general"
	TopicBloodPressure  Topic = "blood_pressure"
	TopicHeartRate      Topic = "heart_rate"
	TopicLipids         Topic = "lipids"
	TopicGlucose        Topic = "glucose"
	TopicImaging        Topic = "imaging"
	TopicMedication     Topic = "medication"
	TopicRehabilitation Topic = "rehabilitation"
	TopicDiet           Topic = "diet"
	TopicFollowUp       Topic = "follow_up"
	TopicLifestyle      Topic = "lifestyle"
	TopicMentalHealth   Topic = "mental_health"
	TopicMonitoring     Topic = "monitoring"
)

// Earlier rules win, so "blood pressure" beats "monitoring" and
// "Mediterranean diet" beats "counseling".
var topicRules = []struct {
	topic    Topic
	keywords []string
}{
	{TopicBloodPressure, []string{"bp ", "bp<", "blood pressure", "presión", "presion"}},
	{TopicLipids, []string{"ldl", "statin", "colesterol", "lipid"}},
	{TopicGlucose, []string{"hba1c", "diabet", "glucosa"}},
	{TopicImaging, []string{"echocardiogram", "stress test", "ecocardiograma", "prueba de esfuerzo"}},
	{TopicRehabilitation, []string{"rehabilitation", "rehabilitación", "rehabilitacion"}},
	{TopicDiet, []string{"diet", "sodium", "nutrition", "alimentación", "sodio"}},
	{TopicHeartRate, []string{"hr ", "heart rate", "frecuencia cardiaca"}},
	{TopicMedication, []string{"beta-blocker", "antiplatelet", "ace inhibitor", "arbs", "medication", "medicamento"}},
	{TopicMentalHealth, []string{"depression", "psycholog", "depresión"}},
	{TopicLifestyle, []string{"smoking", "activity", "self-care", "tabaco", "ejercicio"}},
	{TopicMonitoring, []string{"monitoring", "alert", "monitoreo"}},
	{TopicFollowUp, []string{"follow-up", "check-up", "visit", "seguimiento", "control"}},
}

// ClassifyTopic picks the subject of a single guideline line.
func ClassifyTopic(text string) Topic {
	normalized := strings.ToLower(text) + " "
	for _, rule := range topicRules {
		if containsAny(normalized, rule.keywords) {
			return rule.topic
		}
	}
	return TopicGeneral
}

// Point is one bullet of a guideline outline.
type Point struct {
	Text  string
	Topic Topic
}

// Outline is a guideline text split into its heading and bullet points.
type Outline struct {
	Title  string
	Points []Point
}

var bulletMarkers = []string{"•", "-", "*"}

// ParseOutline takes the first non-empty line as the title and every
// following bulleted line as a point. An unbulleted line directly below a
// point continues it; after a blank line, or before any point exists, it
// becomes a point of its own.
func ParseOutline(text string) Outline {
	var outline Outline
	blank := false
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blank = true
			continue
		}
		continues := !blank
		blank = false
		if outline.Title == "" {
			outline.Title = strings.TrimSuffix(trimmed, ":")
			continue
		}

		body, bulleted := stripBullet(trimmed)
		if body == "" {
			continue
		}
		if !bulleted && continues && len(outline.Points) > 0 {
			last := &outline.Points[len(outline.Points)-1]
			last.Text += " " + body
			last.Topic = ClassifyTopic(last.Text)
			continue
		}
		outline.Points = append(outline.Points, Point{Text: body, Topic: ClassifyTopic(body)})
	}
	return outline
}

func stripBullet(line string) (string, bool) {
	for _, marker := range bulletMarkers {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker)), true
		}
	}
	return line, false
}
