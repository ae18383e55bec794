package services

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func readCSV(b []byte) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(string(b)))
	return r.ReadAll()
}

func TestExportSubmissionsCSV(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	subs := []*Submission{
		{ID: "s2", UserID: 2, TopValues: []string{"Fun"}, NextValues: []string{"Hope", "Peace"}, Age: 40, Country: "Chile", Occupation: "Nurse", CreatedAt: t0.Add(time.Hour)},
		{ID: "s1", UserID: 1, Username: "ada", AccessCode: "TEST123",
			TopValues:     []string{"Courage", "Growth", "Wisdom", "Purpose", "Curiosity"},
			TopCategories: []string{"Self-Direction", "Self-Direction", "Self-Direction", "Self-Direction", "Self-Direction"},
			NextValues:    []string{"Family"}, Age: 30, Country: "Canada", Occupation: "Nurse", CreatedAt: t0, UpdatedAt: t0},
	}
	b, err := ExportSubmissionsCSV(subs)
	if err != nil {
		t.Fatalf("export submissions: %v", err)
	}
	recs, err := readCSV(b)
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("want 3 rows, got %d", len(recs))
	}
	if len(recs[0]) != 4+10+6 {
		t.Fatalf("unexpected header width %d: %v", len(recs[0]), recs[0])
	}
	if recs[1][0] != "s1" || recs[2][0] != "s2" {
		t.Fatalf("rows not ordered by created_at: %v / %v", recs[1][0], recs[2][0])
	}
	if recs[1][4] != "Courage" || recs[1][5] != "Self-Direction" {
		t.Fatalf("unexpected ranked columns: %v", recs[1][4:6])
	}
	if recs[2][14] != "Hope | Peace" {
		t.Fatalf("unexpected next_values: %q", recs[2][14])
	}
	if recs[2][6] != "" {
		t.Fatalf("missing ranked values should be blank, got %q", recs[2][6])
	}
	if recs[1][18] != "2024-05-01T10:00:00Z" || recs[2][19] != "" {
		t.Fatalf("unexpected timestamps: %q %q", recs[1][18], recs[2][19])
	}
}
