// Package checkpoint recognizes security and login interstitials that the
// marketplace substitutes for real listing content.
package checkpoint

import "strings"

// PrefixLimit is how many runes of page text are inspected.
const PrefixLimit = 2000

var phrases = []string{
	"unusual login",
	"security check",
	"verify your account",
	"checkpoint required",
	"confirm your identity",
	"log in to continue",
	"you must log in",
	"log into facebook",
	"sign up for facebook",
}

// IsCheckpoint reports whether the first PrefixLimit runes of text contain a
// known interstitial phrase.
func IsCheckpoint(text string) bool {
	t := strings.ToLower(Prefix(text, PrefixLimit))
	for _, p := range phrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// Prefix returns at most n runes of s.
func Prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
