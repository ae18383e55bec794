package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ExportSubmissionsCSV renders one row per submission, ordered by creation
// time then user id. Ranked values get a column each; unranked values are
// pipe-joined into a single column since their order carries no meaning.
func ExportSubmissionsCSV(subs []*Submission) ([]byte, error) {
	sorted := append([]*Submission(nil), subs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].UserID < sorted[j].UserID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{"submission_id", "user_id", "username", "access_code"}
	for i := 1; i <= 5; i++ {
		header = append(header, "value_"+strconv.Itoa(i), "category_"+strconv.Itoa(i))
	}
	header = append(header, "next_values", "age", "country", "occupation", "created_at", "updated_at")
	_ = w.Write(header)

	for _, s := range sorted {
		rec := []string{s.ID, strconv.FormatInt(s.UserID, 10), s.Username, s.AccessCode}
		for i := 0; i < 5; i++ {
			rec = append(rec, at(s.TopValues, i), at(s.TopCategories, i))
		}
		rec = append(rec,
			strings.Join(s.NextValues, " | "),
			strconv.Itoa(s.Age),
			s.Country,
			s.Occupation,
			formatTime(s.CreatedAt),
			formatTime(s.UpdatedAt),
		)
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
