// Package emotion infers a mood from the last few typed characters and maps
// it to synthesizer delivery parameters.
package emotion

// Label is an inferred emotion.
type Label int

const (
	Neutral Label = iota
	Angry
	Happy
	Sad
	Excited
)

// Emotive lists the labels that have trigger patterns and outburst phrases,
// in detection precedence order.
var Emotive = [...]Label{Angry, Happy, Sad, Excited}

// String returns the lower-case label name.
func (l Label) String() string {
	switch l {
	case Neutral:
		return "neutral"
	case Angry:
		return "angry"
	case Happy:
		return "happy"
	case Sad:
		return "sad"
	case Excited:
		return "excited"
	default:
		return "unknown"
	}
}

// ParseLabel returns the label named s. Unknown names yield Neutral and false.
func ParseLabel(s string) (Label, bool) {
	for _, l := range [...]Label{Neutral, Angry, Happy, Sad, Excited} {
		if l.String() == s {
			return l, true
		}
	}
	return Neutral, false
}

// MarshalText implements [encoding.TextMarshaler] so labels serialise by name.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Rejection is spoken instead of a letter when the user presses Backspace.
const Rejection = "NOPE!"

// TestPhrase is spoken by the explicit speech test.
const TestPhrase = "TEST"

// phrases are the short exclamations an outburst picks from.
var phrases = map[Label][]string{
	Angry:   {"GRRR!", "ARGH!", "RAGE!", "MAD!"},
	Happy:   {"YAY!", "WOOHOO!", "HAPPY!", "JOY!"},
	Sad:     {"BOOHOO!", "SNIFF!", "WAAH!", "TEARS!"},
	Excited: {"AMAZING!", "WOW!", "AWESOME!", "YEAH!"},
}

// Phrases returns the outburst exclamations for l. Neutral has none.
func Phrases(l Label) []string {
	return phrases[l]
}
