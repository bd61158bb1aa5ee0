package content

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coursepipe/coursepipe/internal/model"
)

// ParseQuizReport extracts per-student concatenated answers from a
// student-analysis report CSV. Question columns are located by header:
// everything between "attempt" and "n correct" exclusive. When either
// header is missing the parser falls back to positions 9..len-3 and
// warns, since older LMS exports vary their preamble.
func ParseQuizReport(csvText string) (map[string]string, error) {
	r := csv.NewReader(strings.NewReader(csvText))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse quiz report CSV: %w", err)
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("quiz report CSV is empty")
	}

	header := rows[0]
	idCol := findColumn(header, "id")
	firstQ := findColumn(header, "attempt") + 1
	lastQ := findColumn(header, "n correct")

	if idCol < 0 || firstQ <= 0 || lastQ < 0 {
		slog.Warn("quiz report headers not recognized, using positional fallback",
			"idCol", idCol, "attempt", firstQ-1, "nCorrect", lastQ)
		idCol = 1
		firstQ = 9
		lastQ = -1 // resolved per-row below
	}

	answers := make(map[string]string)
	for _, row := range rows[1:] {
		if idCol >= len(row) {
			continue
		}
		id := strings.TrimSpace(row[idCol])
		if id == "" {
			continue
		}
		end := lastQ
		if end < 0 || end > len(row) {
			end = len(row) - 3
		}
		if end < firstQ {
			continue
		}
		var parts []string
		for _, cell := range row[firstQ:end] {
			text := StripHTML(cell)
			if text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) == 0 {
			continue
		}
		answers[id] = Truncate(strings.Join(parts, "\n\n"), model.MaxContentLen(model.ContentText))
	}
	return answers, nil
}

func findColumn(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}
