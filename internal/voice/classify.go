package voice

import (
	"strings"

	"github.com/MrWong99/lettucespeak/pkg/speech"
)

// Table maps each category to an ordered list of voices. The zero value has
// three empty categories.
type Table [len(Categories)][]speech.Voice

// Get returns the voices of category c. The slice must not be modified.
func (t *Table) Get(c Category) []speech.Voice {
	if c < 0 || int(c) >= len(t) {
		return nil
	}
	return t[c]
}

// Counts returns the number of voices per category, indexed by Category.
func (t *Table) Counts() [len(Categories)]int {
	var n [len(Categories)]int
	for i := range t {
		n[i] = len(t[i])
	}
	return n
}

// nameTokens are matched case-insensitively against voice names. They cover
// generic words plus the stock voice names shipped by common platforms.
var nameTokens = [len(Categories)][]string{
	Male: {
		"male", "man", "david", "alex", "daniel", "fred", "jorge", "thomas",
		"microsoft david", "google uk english male",
	},
	Female: {
		"female", "woman", "samantha", "victoria", "karen", "susan", "anna",
		"kate", "zoe", "microsoft zira", "google uk english female",
	},
	Kids: {"child", "kid", "junior", "young"},
}

// Classify sorts voices into categories.
//
// Each category first collects every voice whose name contains one of its
// tokens; a voice may land in several categories. Voices matched by no
// category are then dealt round-robin (male, female, kids, ...) in their
// original order. Finally a category that is still empty receives
// voices[i mod len(voices)], where i is its position in [Categories], so
// that no category is empty whenever at least one voice exists.
func Classify(voices []speech.Voice) Table {
	var t Table
	if len(voices) == 0 {
		return t
	}

	used := make([]bool, len(voices))
	for _, c := range Categories {
		for i, v := range voices {
			if matchesAny(v.Name, nameTokens[c]) {
				t[c] = append(t[c], v)
				used[i] = true
			}
		}
	}

	n := 0
	for i, v := range voices {
		if used[i] {
			continue
		}
		c := Categories[n%len(Categories)]
		t[c] = append(t[c], v)
		n++
	}

	for i, c := range Categories {
		if len(t[c]) == 0 {
			t[c] = append(t[c], voices[i%len(voices)])
		}
	}
	return t
}

func matchesAny(name string, tokens []string) bool {
	lower := strings.ToLower(name)
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
