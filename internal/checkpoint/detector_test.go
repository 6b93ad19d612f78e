package checkpoint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCheckpoint(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"security check", "Security Check\nPlease complete this step", true},
		{"unusual login", "We noticed an UNUSUAL LOGIN attempt", true},
		{"verify account", "Please verify your account to continue", true},
		{"checkpoint required", "checkpoint required", true},
		{"confirm identity", "Confirm your identity", true},
		{"login wall", "You must log in to continue.", true},
		{"listing page", "2015 Honda Civic\nCA$9,500\nListed 3 hours ago in Montréal, QC", false},
		{"header log in link only", "Marketplace Log In Create new account", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCheckpoint(tt.text))
		})
	}
}

func TestIsCheckpointOnlyInspectsPrefix(t *testing.T) {
	text := strings.Repeat("a", PrefixLimit) + " security check"
	assert.False(t, IsCheckpoint(text))

	text = strings.Repeat("a", PrefixLimit-len("security check")) + "security check"
	assert.True(t, IsCheckpoint(text))
}

func TestPrefixIsRuneSafe(t *testing.T) {
	assert.Equal(t, "Mon", Prefix("Montréal", 3))
	assert.Equal(t, "Montré", Prefix("Montréal", 6))
	assert.Equal(t, "abc", Prefix("abc", 10))
	assert.Equal(t, "", Prefix("abc", 0))
}
