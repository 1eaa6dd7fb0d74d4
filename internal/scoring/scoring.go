// Package scoring turns stored solutions into game standings.
package scoring

import (
	"math"
	"sort"
	"time"
)

// CorrectBonus is added for every solution that scored above zero.
const CorrectBonus = 1000

// TimeLimit is the solving window a solution's elapsed time is measured
// against.
const TimeLimit = 30 * time.Minute

type Submission struct {
	Username    string
	Points      int
	SubmittedAt time.Time
}

type Standing struct {
	Username string    `json:"username"`
	Points   int       `json:"totalPoints"`
	FirstAt  time.Time `json:"-"`
}

// Rank totals submissions per user and orders them best first. Equal totals
// go to whoever submitted first, then by username.
func Rank(subs []Submission) []Standing {
	byUser := make(map[string]*Standing)
	order := make([]string, 0)

	for _, s := range subs {
		st, ok := byUser[s.Username]
		if !ok {
			st = &Standing{Username: s.Username, FirstAt: s.SubmittedAt}
			byUser[s.Username] = st
			order = append(order, s.Username)
		}
		st.Points += s.Points
		if s.Points > 0 {
			st.Points += CorrectBonus
		}
		if s.SubmittedAt.Before(st.FirstAt) {
			st.FirstAt = s.SubmittedAt
		}
	}

	out := make([]Standing, 0, len(order))
	for _, name := range order {
		out = append(out, *byUser[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if !a.FirstAt.Equal(b.FirstAt) {
			return a.FirstAt.Before(b.FirstAt)
		}
		return a.Username < b.Username
	})
	return out
}

// SolutionPoints scores one solution: base points scaled by time left in the
// window and divided by execution time. Never negative.
func SolutionPoints(base int, start, end time.Time, executionTime float64) int {
	if executionTime <= 0 {
		return 0
	}
	elapsed := end.Sub(start).Seconds()
	pts := float64(base) * (TimeLimit.Seconds() - elapsed) / executionTime
	return int(math.Floor(math.Max(0, pts)))
}
