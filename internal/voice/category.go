// Package voice owns the voice catalog: it loads the voices a speech platform
// offers, sorts them into coarse categories, and publishes the result as an
// immutable snapshot that dispatches read without locking.
package voice

import "strings"

// Category is one of the three coarse voice groupings.
type Category int

const (
	Male Category = iota
	Female
	Kids
)

// Categories lists every category in classification order.
var Categories = [...]Category{Male, Female, Kids}

// String returns the lower-case category name.
func (c Category) String() string {
	switch c {
	case Male:
		return "male"
	case Female:
		return "female"
	case Kids:
		return "kids"
	default:
		return "unknown"
	}
}

// letterCategories maps each ASCII letter to its category, spreading the
// alphabet so neighbouring letters rarely share a voice family.
var letterCategories = [26]Category{
	'a' - 'a': Female, 'b' - 'a': Male, 'c' - 'a': Kids,
	'd' - 'a': Female, 'e' - 'a': Male, 'f' - 'a': Kids,
	'g' - 'a': Female, 'h' - 'a': Male, 'i' - 'a': Kids,
	'j' - 'a': Female, 'k' - 'a': Male, 'l' - 'a': Kids,
	'm' - 'a': Female, 'n' - 'a': Male, 'o' - 'a': Kids,
	'p' - 'a': Female, 'q' - 'a': Male, 'r' - 'a': Kids,
	's' - 'a': Female, 't' - 'a': Male, 'u' - 'a': Kids,
	'v' - 'a': Female, 'w' - 'a': Male, 'x' - 'a': Kids,
	'y' - 'a': Female, 'z' - 'a': Male,
}

// LetterCategory returns the category assigned to letter, ignoring case.
// Anything that is not a single ASCII letter resolves to Female.
func LetterCategory(letter string) Category {
	if len(letter) != 1 {
		return Female
	}
	b := letter[0] | 0x20 // ASCII lower-case
	if b < 'a' || b > 'z' {
		return Female
	}
	return letterCategories[b-'a']
}

// Letters returns the upper-case letters assigned to c, in alphabetical order.
func Letters(c Category) string {
	var sb strings.Builder
	for i, lc := range letterCategories {
		if lc == c {
			sb.WriteByte(byte('A' + i))
		}
	}
	return sb.String()
}
