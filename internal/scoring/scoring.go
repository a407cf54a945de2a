// Package scoring rates qualification records.
//
// Scores are a pure function of the lead's fields: the same lead always
// yields the same score and priority band.
package scoring

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
)

// Band thresholds.
const (
	HighThreshold   = 80
	MediumThreshold = 60
	MaxScore        = 100
)

// Score computes the lead score and its priority band.
func Score(l *model.Lead) (int, model.Priority) {
	if l == nil {
		return 0, model.PriorityLow
	}
	score := businessPoints(l.BusinessType) +
		timelinePoints(l.Timeline) +
		contactPoints(l) +
		scalePoints(l.BusinessScale) +
		volumePoints(l.Volume) +
		clarityPoints(l)
	if score > MaxScore {
		score = MaxScore
	}
	return score, PriorityFor(score)
}

// Apply writes the computed score and priority onto the lead.
func Apply(l *model.Lead) {
	l.Score, l.Priority = Score(l)
}

// PriorityFor maps a score to its band.
func PriorityFor(score int) model.Priority {
	switch {
	case score >= HighThreshold:
		return model.PriorityHigh
	case score >= MediumThreshold:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

func businessPoints(t model.BusinessType) int {
	switch t {
	case model.BusinessExisting:
		return 25
	case model.BusinessNewCafe:
		return 20
	}
	return 0
}

var (
	nearTermWords = []string{"asap", "immediately", "urgent", "now", "today", "tomorrow", "soon", "day", "days", "week", "weeks"}
	monthNames    = []string{
		"january", "february", "march", "april", "may", "june", "july",
		"august", "september", "october", "november", "december",
	}
	explicitDate = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}(/\d{2,4})?\b`)
	wordSplit    = regexp.MustCompile(`[^a-z0-9]+`)
)

func timelinePoints(timeline string) int {
	t := strings.ToLower(strings.TrimSpace(timeline))
	if t == "" {
		return 0
	}
	if explicitDate.MatchString(t) {
		return 20
	}
	words := wordSplit.Split(t, -1)
	for _, w := range words {
		for _, near := range nearTermWords {
			if w == near {
				return 20
			}
		}
	}
	// "March 15" is a date; "in March" alone is vague.
	for i, w := range words {
		if !contains(monthNames, w) || i+1 >= len(words) {
			continue
		}
		if n, err := strconv.Atoi(words[i+1]); err == nil && n >= 1 && n <= 31 {
			return 20
		}
	}
	return 10
}

func contactPoints(l *model.Lead) int {
	points := 0
	for _, v := range []string{l.ContactName, l.ContactEmail, l.ContactPhone} {
		if strings.TrimSpace(v) != "" {
			points += 10
		}
	}
	return points
}

func scalePoints(scale string) int {
	if strings.TrimSpace(scale) == "" {
		return 0
	}
	n, ok := ParseCount(scale)
	switch {
	case ok && n >= 3:
		return 15
	case ok && n >= 1:
		return 10
	default:
		return 5
	}
}

func volumePoints(volume string) int {
	n, ok := ParseCount(volume)
	switch {
	case !ok:
		return 0
	case n >= 200:
		return 10
	case n >= 100:
		return 5
	}
	return 0
}

func clarityPoints(l *model.Lead) int {
	points := 5 * (len(distinct(l.PainPoints)) + len(distinct(l.SupportNeeds)))
	if points > 10 {
		points = 10
	}
	return points
}

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
	"single": 1, "couple": 2, "few": 3, "several": 3, "dozen": 12,
}

var multipliers = map[string]int{"hundred": 100, "thousand": 1000}

var leadingNumber = regexp.MustCompile(`\d[\d,]*`)

// ParseCount extracts the first count from free text such as "3 shops",
// "three locations" or "about 1,200 cups". Digits win over number words.
func ParseCount(s string) (int, bool) {
	s = strings.ToLower(s)
	if m := leadingNumber.FindString(s); m != "" {
		if n, err := strconv.Atoi(strings.ReplaceAll(m, ",", "")); err == nil {
			return n, true
		}
	}
	words := wordSplit.Split(s, -1)
	for i, w := range words {
		n, ok := numberWords[w]
		if !ok {
			if m, isMult := multipliers[w]; isMult {
				return m, true
			}
			continue
		}
		if i+1 < len(words) {
			if m, isMult := multipliers[words[i+1]]; isMult {
				n *= m
			}
		}
		return n, true
	}
	return 0, false
}

func distinct(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
