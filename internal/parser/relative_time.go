// Package parser turns the free-form strings a listing page renders into
// normalized values. Every function here is pure and never fails.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeTimeRe = regexp.MustCompile(`(\d+)\s*(minute|hour|day)`)

// ParseRelativeTime resolves phrases like "just now", "yesterday" or
// "Listed 3 hours ago" against now. The second result is false when the text
// carries no recognizable age.
func ParseRelativeTime(text string, now time.Time) (time.Time, bool) {
	t := strings.ToLower(text)

	if strings.Contains(t, "just now") {
		return now, true
	}
	if strings.Contains(t, "yesterday") {
		return now.Add(-24 * time.Hour), true
	}

	m := relativeTimeRe.FindStringSubmatch(t)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// digit run too long for an int
		return time.Time{}, false
	}

	var unit time.Duration
	switch m[2] {
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	}
	return now.Add(-time.Duration(n) * unit), true
}
