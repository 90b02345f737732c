package emotion

import "strings"

// DefaultRandomProbability is the chance that input matching no pattern is
// still given a random emotion.
const DefaultRandomProbability = 0.10

// Random is the source of randomness. *rand.Rand from math/rand/v2 satisfies
// it.
type Random interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// IntN returns a uniform value in [0, n).
	IntN(n int) int
}

// patterns are the trigger substrings per label.
var patterns = map[Label][]string{
	Angry:   {"gr", "rr", "gg", "ff", "xx", "zz", "kk", "qq"},
	Happy:   {"ha", "he", "hi", "ho", "la", "ya", "jo", "we"},
	Sad:     {"oo", "uu", "ww", "mm", "nn", "bo", "so", "no"},
	Excited: {"ee", "aa", "ii", "wow", "yes", "go", "up", "fun"},
}

// Detector infers an emotion from the tail of the input buffer.
type Detector struct {
	rng  Random
	prob float64
}

// DetectorOption configures a [Detector].
type DetectorOption func(*Detector)

// WithRandomProbability overrides [DefaultRandomProbability].
func WithRandomProbability(p float64) DetectorOption {
	return func(d *Detector) { d.prob = p }
}

// NewDetector creates a detector drawing randomness from rng.
func NewDetector(rng Random, opts ...DetectorOption) *Detector {
	d := &Detector{rng: rng, prob: DefaultRandomProbability}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect returns the emotion of buffer. Only the trailing two and three
// characters are examined. Labels are tried in [Emotive] order and the first
// whose pattern occurs in either window wins. Without a match, a uniformly
// chosen emotive label is returned with the configured probability and
// Neutral otherwise.
func (d *Detector) Detect(buffer string) Label {
	if l, ok := Match(buffer); ok {
		return l
	}
	if d.rng.Float64() < d.prob {
		return Emotive[d.rng.IntN(len(Emotive))]
	}
	return Neutral
}

// Match is the deterministic part of [Detector.Detect].
func Match(buffer string) (Label, bool) {
	tail2 := strings.ToLower(tail(buffer, 2))
	tail3 := strings.ToLower(tail(buffer, 3))
	for _, l := range Emotive {
		for _, p := range patterns[l] {
			if strings.Contains(tail2, p) || strings.Contains(tail3, p) {
				return l, true
			}
		}
	}
	return Neutral, false
}

// tail returns the last n bytes of s, or s itself when shorter.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
