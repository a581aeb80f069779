package guidelines

import "strings"

type category int

const (
	categoryGeneral category = iota
	categoryBloodPressure
	categoryFollowUp
	categoryRehabilitation
	categoryDiet
)

type keywordGroup struct {
	category category
	keywords []string
}

// Groups are tested in slice order and the first match wins.
var keywordGroups = map[Source][]keywordGroup{
	SourceAHA: {
		{category: categoryBloodPressure, keywords: []string{"presión", "presion"}},
		{category: categoryFollowUp, keywords: []string{"seguimiento", "control"}},
	},
	SourceGES: {
		{category: categoryRehabilitation, keywords: []string{"rehabilitación", "rehabilitacion"}},
		{category: categoryDiet, keywords: []string{"dieta", "alimentación"}},
	},
}

var cannedResponses = map[Source]map[category]string{
	SourceAHA: {
		categoryBloodPressure: "Según las guías de la AHA, la presión arterial objetivo para pacientes post-infarto debe ser <130/80 mmHg, con un mínimo aceptable de <140/90 mmHg. Se recomienda monitoreo regular y ajuste de medicación antihipertensiva según sea necesario para mantener estos valores.",
		categoryFollowUp:      "Las guías AHA recomiendan un seguimiento intensivo inicial con visitas regulares a las 2 semanas, 1 mes, 3 meses, 6 meses y 1 año post-infarto. Esto permite ajustar el tratamiento y detectar complicaciones tempranamente.",
		categoryGeneral:       "Basado en las guías AHA para pacientes post-infarto, se recomienda un enfoque integral que incluye control estricto de factores de riesgo cardiovascular, terapia farmacológica óptima (incluyendo antiagregantes plaquetarios duales por al menos 12 meses), rehabilitación cardíaca y seguimiento regular. La meta es prevenir eventos recurrentes y optimizar la recuperación funcional del paciente.",
	},
	SourceGES: {
		categoryRehabilitation: "Las guías GES de Chile enfatizan la rehabilitación cardíaca temprana, recomendando un mínimo de 15 sesiones en 2 meses. Este programa debe ser multidisciplinario e incluir ejercicio supervisado, educación y apoyo psicológico.",
		categoryDiet:           "Según las guías GES, se recomienda una dieta baja en sodio con enfoque en el patrón mediterráneo. Se sugiere consejería nutricional personalizada como parte integral del tratamiento post-infarto.",
		categoryGeneral:        "Las guías GES de Chile para pacientes post-infarto establecen un primer control en 7-14 días, seguido de controles mensuales iniciales que se espacian tras la estabilización. Se enfatiza la adherencia terapéutica, dieta adecuada, actividad física moderada y educación en autocuidado. El programa garantiza acceso a medicamentos y exámenes como ecocardiograma en el primer mes y prueba de esfuerzo antes de los 3 meses si está indicada.",
	},
}

// Respond answers a question about a guideline source with one of the
// source's canned paragraphs. Matching is a case-insensitive substring test
// against keyword groups in a fixed priority order; when nothing matches,
// including for a blank query, the source's general paragraph is returned.
// Any source other than AHA is answered from the GES catalog.
func Respond(source Source, query string) string {
	if source != SourceAHA {
		source = SourceGES
	}
	return cannedResponses[source][classify(source, query)]
}

func classify(source Source, query string) category {
	normalized := strings.ToLower(query)
	for _, group := range keywordGroups[source] {
		if containsAny(normalized, group.keywords) {
			return group.category
		}
	}
	return categoryGeneral
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// Catalog returns every canned paragraph for a source, specific answers in
// priority order followed by the general one.
func Catalog(source Source) []string {
	if source != SourceAHA {
		source = SourceGES
	}
	groups := keywordGroups[source]
	result := make([]string, 0, len(groups)+1)
	for _, group := range groups {
		result = append(result, cannedResponses[source][group.category])
	}
	return append(result, cannedResponses[source][categoryGeneral])
}
