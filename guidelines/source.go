// Package guidelines holds the clinical guideline sources known to Nexo+,
// their reference recommendations, and the canned query responder used as a
// stand-in for a real interpretation service.
package guidelines

import (
	"errors"
	"fmt"
	"strings"
)

// Source identifies the guideline catalog a question is answered from.
type Source string

const (
	// SourceAHA is the American Heart Association post-AMI recommendations.
	SourceAHA Source = "AHA"
	// SourceGES is Chile's Garantías Explícitas en Salud program.
	SourceGES Source = "GES"
)

var (
	ErrUnknownSource = errors.New("unrecognized guideline source, use 'AHA' or 'GES'")
	ErrBlankQuery    = errors.New("query is required")
)

// BlankQueryMessage is shown to users whose question was rejected by
// ValidateQuery.
const BlankQueryMessage = "Por favor ingrese una pregunta para interpretar las guías clínicas."

// Sources lists every supported source in display order.
func Sources() []Source {
	return []Source{SourceAHA, SourceGES}
}

func ParseSource(value string) (Source, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(SourceAHA):
		return SourceAHA, nil
	case string(SourceGES):
		return SourceGES, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, value)
	}
}

func (s Source) String() string {
	return string(s)
}

// ValidateQuery rejects questions that are empty once surrounding whitespace
// is removed. Callers run it before handing a query to any interpreter.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrBlankQuery
	}
	return nil
}
