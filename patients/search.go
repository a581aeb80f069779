package patients

import (
	"fmt"
	"sort"
	"strings"
)

// SortField names a column the patient list can be ordered by.
type SortField string

const (
	SortByName      SortField = "nombre"
	SortByAge       SortField = "edad"
	SortBySystolic  SortField = "presion_sistolica"
	SortByHeartRate SortField = "frecuencia_cardiaca"
)

// ParseSortField accepts the JSON field names used by the API. An empty
// value means no ordering.
func ParseSortField(value string) (SortField, error) {
	field := SortField(strings.ToLower(strings.TrimSpace(value)))
	switch field {
	case "", SortByName, SortByAge, SortBySystolic, SortByHeartRate:
		return field, nil
	default:
		return "", fmt.Errorf("%w: unknown sort field %q", ErrInvalid, value)
	}
}

// Search keeps the patients whose name contains term (case-insensitive) or
// whose phone number contains it. A blank term keeps everyone.
func Search(list []Patient, term string) []Patient {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return list
	}

	result := make([]Patient, 0, len(list))
	for _, p := range list {
		if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(p.Phone, term) {
			result = append(result, p)
		}
	}
	return result
}

// SortBy orders list in place. When ordering by a vital sign, patients
// without measurements come first in either direction.
func SortBy(list []Patient, field SortField, desc bool) {
	var (
		less  func(a, b Patient) bool
		vital bool
	)
	switch field {
	case SortByName:
		less = func(a, b Patient) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case SortByAge:
		less = func(a, b Patient) bool { return a.Age < b.Age }
	case SortBySystolic:
		vital = true
		less = func(a, b Patient) bool {
			return latestValue(a, func(m Measurement) float64 { return m.Systolic }) <
				latestValue(b, func(m Measurement) float64 { return m.Systolic })
		}
	case SortByHeartRate:
		vital = true
		less = func(a, b Patient) bool {
			return latestValue(a, func(m Measurement) float64 { return m.HeartRate }) <
				latestValue(b, func(m Measurement) float64 { return m.HeartRate })
		}
	default:
		return
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if vital {
			aEmpty, bEmpty := len(a.Measurements) == 0, len(b.Measurements) == 0
			if aEmpty != bEmpty {
				return aEmpty
			}
		}
		if desc {
			return less(b, a)
		}
		return less(a, b)
	})
}

func latestValue(p Patient, value func(Measurement) float64) float64 {
	m, ok := p.Latest()
	if !ok {
		return 0
	}
	return value(m)
}
