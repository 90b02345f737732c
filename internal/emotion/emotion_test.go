package emotion

import (
	"math"
	"math/rand/v2"
	"testing"
)

// seqRandom replays fixed draws. It panics when a sequence runs out so tests
// notice unexpected extra draws.
type seqRandom struct {
	floats []float64
	ints   []int
}

func (s *seqRandom) Float64() float64 {
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *seqRandom) IntN(n int) int {
	v := s.ints[0] % n
	s.ints = s.ints[1:]
	return v
}

func TestDetect_Patterns(t *testing.T) {
	tests := []struct {
		buffer string
		want   Label
	}{
		{"gr", Angry},
		{"aGR", Angry},
		{"xgr", Angry},
		{"ha", Happy},
		{"HA", Happy},
		{"too", Sad},
		{"bee", Excited},
		{"wow", Excited}, // "wo" and "wow": sad has no "wo"
		{"fun", Excited},
		{"ggha", Happy},  // tail "ha"/"gha": angry "gg" is outside both windows
		{"gra", Angry},   // "gr" only in the three-character window
		{"yes", Excited}, // "es"/"yes"
		{"he", Happy},
		{"no", Sad},
	}
	for _, tc := range tests {
		t.Run(tc.buffer, func(t *testing.T) {
			d := NewDetector(&seqRandom{})
			if got := d.Detect(tc.buffer); got != tc.want {
				t.Errorf("Detect(%q) = %s, want %s", tc.buffer, got, tc.want)
			}
		})
	}
}

func TestDetect_GThenRIsAngry(t *testing.T) {
	d := NewDetector(&seqRandom{})
	buffer := "g"
	buffer += "r"
	for range 10 {
		if got := d.Detect(buffer); got != Angry {
			t.Fatalf("Detect(%q) = %s, want angry", buffer, got)
		}
	}
}

func TestDetect_PrecedenceFollowsLabelOrder(t *testing.T) {
	// "hoo": happy "ho" and sad "oo" both match; happy comes first.
	d := NewDetector(&seqRandom{})
	if got := d.Detect("hoo"); got != Happy {
		t.Errorf("Detect(hoo) = %s, want happy", got)
	}
	// "grr": angry beats everything.
	if got := d.Detect("grr"); got != Angry {
		t.Errorf("Detect(grr) = %s, want angry", got)
	}
}

func TestDetect_RandomPath(t *testing.T) {
	tests := []struct {
		name   string
		buffer string
		rng    *seqRandom
		want   Label
	}{
		{"empty buffer draws neutral", "", &seqRandom{floats: []float64{0.5}}, Neutral},
		{"no match above threshold", "xyz", &seqRandom{floats: []float64{0.10}}, Neutral},
		{"no match below threshold picks angry", "xyz", &seqRandom{floats: []float64{0.09}, ints: []int{0}}, Angry},
		{"no match below threshold picks excited", "b", &seqRandom{floats: []float64{0}, ints: []int{3}}, Excited},
		{"sad", "qwc", &seqRandom{floats: []float64{0.01}, ints: []int{2}}, Sad},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDetector(tc.rng)
			if got := d.Detect(tc.buffer); got != tc.want {
				t.Errorf("Detect(%q) = %s, want %s", tc.buffer, got, tc.want)
			}
		})
	}
}

func TestDetect_RandomProbabilityOption(t *testing.T) {
	d := NewDetector(&seqRandom{floats: []float64{0.5}, ints: []int{1}}, WithRandomProbability(0.6))
	if got := d.Detect("xyz"); got != Happy {
		t.Errorf("Detect = %s, want happy", got)
	}
}

func TestDetect_RandomRateIsRoughlyTenPercent(t *testing.T) {
	d := NewDetector(rand.New(rand.NewPCG(1, 2)))
	const n = 20000
	emotive := 0
	for range n {
		if d.Detect("bcd") != Neutral {
			emotive++
		}
	}
	if rate := float64(emotive) / n; rate < 0.08 || rate > 0.12 {
		t.Errorf("emotive rate = %.3f, want about 0.10", rate)
	}
}

func TestResolve_Table(t *testing.T) {
	tests := []struct {
		label Label
		want  Params
	}{
		{Angry, Params{Rate: 2.5, Pitch: 0.2, Volume: 1.0}},
		{Happy, Params{Rate: 1.8, Pitch: 1.9, Volume: 0.9}},
		{Sad, Params{Rate: 0.6, Pitch: 0.4, Volume: 0.7}},
		{Excited, Params{Rate: 3.0, Pitch: 2.0, Volume: 1.0}},
		{Neutral, Params{Rate: 1.5, Pitch: 1.0, Volume: 0.8}},
		{Label(42), Params{Rate: 1.5, Pitch: 1.0, Volume: 0.8}},
	}
	for _, tc := range tests {
		t.Run(tc.label.String(), func(t *testing.T) {
			if got := Resolve(tc.label); got != tc.want {
				t.Errorf("Resolve(%s) = %+v, want %+v", tc.label, got, tc.want)
			}
		})
	}
}

func inRange(p Params) bool {
	return p.Rate >= MinRate && p.Rate <= MaxRate &&
		p.Pitch >= MinPitch && p.Pitch <= MaxPitch &&
		p.Volume >= MinVolume && p.Volume <= MaxVolume
}

func TestOutburst_StaysInRange(t *testing.T) {
	for _, l := range []Label{Neutral, Angry, Happy, Sad, Excited} {
		p := Resolve(l)
		o := Outburst(p)
		if !inRange(o) {
			t.Errorf("Outburst(Resolve(%s)) = %+v out of range", l, o)
		}
		if o.Pitch != p.Pitch {
			t.Errorf("%s: outburst pitch = %v, want %v", l, o.Pitch, p.Pitch)
		}
	}

	// Repeated scaling must keep clamping.
	p := Params{Rate: 9.5, Pitch: 2, Volume: 1}
	for range 5 {
		p = Outburst(p)
		if !inRange(p) {
			t.Fatalf("repeated outburst left range: %+v", p)
		}
	}
	if p.Rate != MaxRate {
		t.Errorf("rate = %v, want %v", p.Rate, MaxRate)
	}
}

func TestOutburst_Excited(t *testing.T) {
	got := Outburst(Resolve(Excited))
	want := Params{Rate: 3.0 * 1.2, Pitch: 2.0, Volume: 0.8}
	if math.Abs(got.Rate-want.Rate) > 1e-9 || got.Pitch != want.Pitch || math.Abs(got.Volume-want.Volume) > 1e-9 {
		t.Errorf("Outburst(excited) = %+v, want %+v", got, want)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   Params
		want Params
	}{
		{"in range", Params{Rate: 1, Pitch: 1, Volume: 0.5}, Params{Rate: 1, Pitch: 1, Volume: 0.5}},
		{"too high", Params{Rate: 11, Pitch: 3, Volume: 1.2}, Params{Rate: 10, Pitch: 2, Volume: 1}},
		{"too low", Params{Rate: 0, Pitch: -1, Volume: -0.5}, Params{Rate: 0.1, Pitch: 0, Volume: 0}},
		{"nan", Params{Rate: math.NaN(), Pitch: math.NaN(), Volume: math.NaN()}, Params{Rate: 0.1, Pitch: 0, Volume: 0}},
		{"inf", Params{Rate: math.Inf(1), Pitch: math.Inf(-1), Volume: math.Inf(1)}, Params{Rate: 10, Pitch: 0, Volume: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clamp(tc.in); got != tc.want {
				t.Errorf("Clamp(%+v) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestPhrases(t *testing.T) {
	for _, l := range Emotive {
		if n := len(Phrases(l)); n != 4 {
			t.Errorf("%s has %d phrases, want 4", l, n)
		}
	}
	if Phrases(Neutral) != nil {
		t.Error("neutral must have no phrases")
	}
}

func TestParseLabel(t *testing.T) {
	for _, l := range []Label{Neutral, Angry, Happy, Sad, Excited} {
		got, ok := ParseLabel(l.String())
		if !ok || got != l {
			t.Errorf("ParseLabel(%q) = %s, %v", l.String(), got, ok)
		}
	}
	if _, ok := ParseLabel("grumpy"); ok {
		t.Error("ParseLabel(grumpy) reported ok")
	}
}
