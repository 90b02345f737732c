package emotion

import "github.com/MrWong99/lettucespeak/pkg/speech"

// Params are synthesizer delivery parameters.
type Params = speech.Params

// Valid parameter ranges.
const (
	MinRate   = 0.1
	MaxRate   = 10
	MinPitch  = 0
	MaxPitch  = 2
	MinVolume = 0
	MaxVolume = 1
)

// Outburst scaling applied to the primary utterance's parameters.
const (
	OutburstRateFactor   = 1.2
	OutburstVolumeFactor = 0.8
)

var paramTable = map[Label]Params{
	Angry:   {Rate: 2.5, Pitch: 0.2, Volume: 1.0},
	Happy:   {Rate: 1.8, Pitch: 1.9, Volume: 0.9},
	Sad:     {Rate: 0.6, Pitch: 0.4, Volume: 0.7},
	Excited: {Rate: 3.0, Pitch: 2.0, Volume: 1.0},
	Neutral: {Rate: 1.5, Pitch: 1.0, Volume: 0.8},
}

// Resolve returns the clamped delivery parameters for l. Unknown labels
// resolve as Neutral.
func Resolve(l Label) Params {
	p, ok := paramTable[l]
	if !ok {
		p = paramTable[Neutral]
	}
	return Clamp(p)
}

// Outburst derives the parameters of a secondary utterance from those of the
// primary it follows.
func Outburst(p Params) Params {
	return Clamp(Params{
		Rate:   p.Rate * OutburstRateFactor,
		Pitch:  p.Pitch,
		Volume: p.Volume * OutburstVolumeFactor,
	})
}

// Clamp limits every field of p to its valid range. NaN becomes the lower
// bound.
func Clamp(p Params) Params {
	return Params{
		Rate:   clamp(p.Rate, MinRate, MaxRate),
		Pitch:  clamp(p.Pitch, MinPitch, MaxPitch),
		Volume: clamp(p.Volume, MinVolume, MaxVolume),
	}
}

func clamp(v, lo, hi float64) float64 {
	if !(v >= lo) { // also catches NaN
		return lo
	}
	return min(v, hi)
}
