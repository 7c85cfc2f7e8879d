package grades

import (
	"sort"

	"github.com/sells-group/time-capsule/internal/model"
)

// Entry is one grade a person received, tagged with the item it came from.
type Entry struct {
	Grade     string `json:"grade"`
	Rationale string `json:"rationale"`
	Article   string `json:"article"`
}

// ByUser maps a person to every grade they received for a date
// (all_grades.json).
type ByUser map[string][]Entry

// Aggregate folds per-item grades into per-person lists. Items are visited
// in the given order so the output is stable.
func Aggregate(order []string, perItem map[string]map[string]model.Grade) ByUser {
	out := make(ByUser)
	for _, id := range order {
		gs := perItem[id]
		users := make([]string, 0, len(gs))
		for u := range gs {
			users = append(users, u)
		}
		sort.Strings(users)
		for _, u := range users {
			g := gs[u]
			out[u] = append(out[u], Entry{Grade: g.Grade, Rationale: g.Rationale, Article: id})
		}
	}
	return out
}

// Standing is one leaderboard row.
type Standing struct {
	User  string  `json:"user"`
	GPA   float64 `json:"gpa"`
	Count int     `json:"count"`
}

// Leaderboard returns the top n people by mean grade points, ties broken
// by count then name. n <= 0 returns everyone.
func (b ByUser) Leaderboard(n int) []Standing {
	rows := make([]Standing, 0, len(b))
	for u, entries := range b {
		if len(entries) == 0 {
			continue
		}
		var sum float64
		for _, e := range entries {
			sum += ToNumeric(e.Grade)
		}
		rows = append(rows, Standing{User: u, GPA: sum / float64(len(entries)), Count: len(entries)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].GPA != rows[j].GPA {
			return rows[i].GPA > rows[j].GPA
		}
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].User < rows[j].User
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
