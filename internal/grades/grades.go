// Package grades extracts per-person letter grades and the interest score
// from free-form analysis text. Anything that does not match is a parse
// miss, never an error.
package grades

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/time-capsule/internal/model"
)

var (
	reHeader = regexp.MustCompile(`(?i)(?:^|\n)(?:\d+[\.\)]\s*)?(?:#+ *)?Final grades\s*\n`)
	reLine   = regexp.MustCompile(`^[\-\*]\s*([^:]+):\s*([A-F][+\-−]?)(?:\s*\(([^)]+)\))?`)
	reScore  = regexp.MustCompile(`(?i)Article hindsight analysis interestingness score:\s*(\d+)`)
)

// Parse returns person -> grade from the "Final grades" section. Scanning
// stops at the first line opening a heading or a citation block.
func Parse(text string) map[string]model.Grade {
	out := make(map[string]model.Grade)
	loc := reHeader.FindStringIndex(text)
	if loc == nil {
		return out
	}

	for _, line := range strings.Split(text[loc[1]:], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "[") {
			break
		}
		m := reLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out[strings.TrimSpace(m[1])] = model.Grade{
			Grade:     strings.TrimSpace(m[2]),
			Rationale: strings.TrimSpace(m[3]),
		}
	}
	return out
}

// InterestScore returns the 0-10 score, or nil when the phrase is absent.
func InterestScore(text string) *int {
	m := reScore.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// Too many digits to fit an int.
		n = 10
	}
	n = max(0, min(10, n))
	return &n
}

var base = map[byte]float64{'A': 4, 'B': 3, 'C': 2, 'D': 1, 'F': 0}

// ToNumeric converts a letter grade to grade points: A=4 through F=0, with
// + adding 0.3 and - (or U+2212) subtracting 0.3.
func ToNumeric(grade string) float64 {
	if grade == "" {
		return 0
	}
	v := base[strings.ToUpper(grade[:1])[0]]
	switch rest := grade[1:]; {
	case strings.HasPrefix(rest, "+"):
		v += 0.3
	case strings.HasPrefix(rest, "-"), strings.HasPrefix(rest, "−"):
		v -= 0.3
	}
	return v
}
