package patients_test

import (
	"errors"
	"testing"

	"github.com/fabfab/nexo/patients"
)

func samplePatients() []patients.Patient {
	return []patients.Patient{
		{ID: "1", Name: "Carlos Soto", Age: 70, Phone: "+56911111111", Measurements: []patients.Measurement{{Systolic: 150, HeartRate: 90}}},
		{ID: "2", Name: "ana Rojas", Age: 55, Phone: "+56922222222", Measurements: []patients.Measurement{{Systolic: 110, HeartRate: 60}, {Systolic: 185, HeartRate: 125}}},
		{ID: "3", Name: "Beatriz Díaz", Age: 62},
	}
}

func TestSearch(t *testing.T) {
	list := samplePatients()

	if got := patients.Search(list, "ROJAS"); len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("name search: %+v", got)
	}
	if got := patients.Search(list, "1111"); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("phone search: %+v", got)
	}
	if got := patients.Search(list, "  "); len(got) != 3 {
		t.Fatalf("blank search should keep everyone, got %d", len(got))
	}
	if got := patients.Search(list, "zzz"); len(got) != 0 {
		t.Fatalf("expected no matches, got %+v", got)
	}
}

func TestSortBy(t *testing.T) {
	cases := []struct {
		field patients.SortField
		desc  bool
		want  []string
	}{
		{patients.SortByName, false, []string{"2", "3", "1"}},
		{patients.SortByAge, true, []string{"1", "3", "2"}},
		{patients.SortBySystolic, false, []string{"3", "1", "2"}},
		{patients.SortBySystolic, true, []string{"3", "2", "1"}},
		{patients.SortByHeartRate, true, []string{"3", "2", "1"}},
		{patients.SortByHeartRate, false, []string{"3", "1", "2"}},
		{"", false, []string{"1", "2", "3"}},
	}

	for _, tc := range cases {
		list := samplePatients()
		patients.SortBy(list, tc.field, tc.desc)
		for i, id := range tc.want {
			if list[i].ID != id {
				t.Fatalf("sort %q desc=%v: position %d got %s, want %s", tc.field, tc.desc, i, list[i].ID, id)
			}
		}
	}
}

func TestParseSortField(t *testing.T) {
	if field, err := patients.ParseSortField(" Edad "); err != nil || field != patients.SortByAge {
		t.Fatalf("expected edad, got %q %v", field, err)
	}
	if _, err := patients.ParseSortField("peso"); !errors.Is(err, patients.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
