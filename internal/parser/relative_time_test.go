package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRelativeTime(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		text   string
		want   time.Time
		wantOK bool
	}{
		{"just now", now, true},
		{"Listed Just Now in Montréal, QC", now, true},
		{"yesterday", now.Add(-24 * time.Hour), true},
		{"Listed YESTERDAY", now.Add(-24 * time.Hour), true},
		{"3 hours", now.Add(-3 * time.Hour), true},
		{"45 minute", now.Add(-45 * time.Minute), true},
		{"Listed 12 minutes ago", now.Add(-12 * time.Minute), true},
		{"2 days ago", now.Add(-48 * time.Hour), true},
		{"5hours", now.Add(-5 * time.Hour), true},
		{"posted", time.Time{}, false},
		{"a minute ago", time.Time{}, false},
		{"", time.Time{}, false},
		{"99999999999999999999 days", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseRelativeTime(tt.text, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestParseRelativeTimeIsDeterministic(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first, _ := ParseRelativeTime("7 hours", now)
	second, _ := ParseRelativeTime("7 hours", now)
	assert.Equal(t, first, second)
}
