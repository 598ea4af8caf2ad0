// Package identity binds narrated display names to short identifiers.
package identity

import (
	"unicode"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// relevant folds case and keeps letters and digits only, so "Bob_the_Goblin"
// and "Bob the Goblin" compare equal.
func relevant(s string) []rune {
	folded := folder.String(s)
	out := make([]rune, 0, len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}

// Score rates how well short identifier id aligns with display name name,
// in [0,1]. Each character of name earns 2 points when it continues the
// match right after the cursor in id, 1 point when it is found further
// along id (the cursor jumps there), and nothing otherwise.
func Score(id, name string) float64 {
	s, f := relevant(id), relevant(name)
	if len(f) == 0 {
		return 0
	}
	cursor := -1
	points := 0
	for _, c := range f {
		if cursor+1 < len(s) && s[cursor+1] == c {
			points += 2
			cursor++
			continue
		}
		for j := cursor + 2; j < len(s); j++ {
			if s[j] == c {
				points++
				cursor = j
				break
			}
		}
	}
	return float64(points) / float64(2*len(f))
}
