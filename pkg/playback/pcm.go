package playback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/lettucespeak/pkg/speech"
)

// Format describes 16-bit little-endian PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "22050Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// frameSize returns the number of bytes per frame.
func (f Format) frameSize() int {
	if f.Channels <= 0 {
		return 2
	}
	return 2 * f.Channels
}

// Duration returns the playing time of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(n/f.frameSize()) * time.Second / time.Duration(f.SampleRate)
}

// sample reads the int16 at sample index i.
func sample(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

// putSample writes v at sample index i, clamped to the int16 range.
func putSample(pcm []byte, i int, v float64) {
	switch {
	case v > math.MaxInt16:
		v = math.MaxInt16
	case v < math.MinInt16:
		v = math.MinInt16
	}
	binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
}

// Resample converts interleaved PCM with the given channel count from
// srcRate to dstRate using linear interpolation per channel. Invalid rates
// or an equal rate return the input unchanged.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if channels <= 0 {
		channels = 1
	}
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*2*channels)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for c := range channels {
			s0 := float64(sample(pcm, idx*channels+c))
			s1 := float64(sample(pcm, next*channels+c))
			putSample(out, i*channels+c, s0*(1-frac)+s1*frac)
		}
	}
	return out
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := range len(pcm) / 2 {
		copy(out[i*4:], pcm[i*2:i*2+2])
		copy(out[i*4+2:], pcm[i*2:i*2+2])
	}
	return out
}

// ApplyGain scales every sample by gain, clipping at the int16 range. It
// returns a new slice; gain 1 returns the input unchanged.
func ApplyGain(pcm []byte, gain float64) []byte {
	if gain == 1 {
		return pcm
	}
	out := make([]byte, len(pcm)&^1)
	for i := range len(out) / 2 {
		putSample(out, i, float64(sample(pcm, i))*gain)
	}
	return out
}

// MinShapeSpeed is the slowest playback speed [Shape] renders.
const MinShapeSpeed = 0.25

// Shape applies delivery params to PCM that was synthesized at default
// delivery. Volume is a linear gain. Rate and pitch are both rendered by
// resampling: the buffer is played back rate×pitch times faster, which raises
// the pitch along with the speed. Platforms that can control rate and pitch
// natively should do so instead.
//
// The combined speed never drops below [MinShapeSpeed], so the lowest pitch
// still plays slowed down.
func Shape(pcm []byte, f Format, p speech.Params) []byte {
	speed := max(p.Rate*p.Pitch, MinShapeSpeed)
	if speed != 1 && f.SampleRate > 0 {
		pcm = Resample(pcm, f.Channels, int(math.Round(float64(f.SampleRate)*speed)), f.SampleRate)
	}
	return ApplyGain(pcm, p.Volume)
}

// WAV is a parsed RIFF/WAVE file holding 16-bit PCM.
type WAV struct {
	Format Format
	Data   []byte
}

// ParseWAV walks the RIFF chunks of wav and returns the PCM data of its data
// chunk. Only 16-bit integer PCM is accepted. A data chunk whose declared
// size exceeds the buffer, as streamed WAVs often have, is truncated to what
// is present.
func ParseWAV(wav []byte) (WAV, error) {
	if len(wav) < 12 {
		return WAV{}, errors.New("playback: WAV too short to be a RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return WAV{}, errors.New("playback: WAV missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return WAV{}, errors.New("playback: WAV missing WAVE identifier")
	}

	var (
		out      WAV
		foundFmt bool
	)
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return WAV{}, errors.New("playback: WAV fmt chunk truncated")
			}
			fmtData := wav[body:]
			if tag := binary.LittleEndian.Uint16(fmtData[0:2]); tag != 1 && tag != 0xFFFE {
				return WAV{}, fmt.Errorf("playback: unsupported WAV encoding %d", tag)
			}
			out.Format.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			out.Format.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			if bits := binary.LittleEndian.Uint16(fmtData[14:16]); bits != 16 {
				return WAV{}, fmt.Errorf("playback: unsupported WAV sample size %d bits", bits)
			}
			foundFmt = true
		case "data":
			if !foundFmt {
				return WAV{}, errors.New("playback: WAV data chunk before fmt chunk")
			}
			end := min(body+size, len(wav))
			out.Data = wav[body:end]
			return out, nil
		}

		offset = body + size
		if size%2 != 0 {
			offset++
		}
	}
	return WAV{}, errors.New("playback: WAV missing data chunk")
}

// EncodeWAV wraps 16-bit PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	channels := max(f.Channels, 1)
	le := binary.LittleEndian
	buf := make([]byte, 44, 44+len(pcm))

	copy(buf[0:], "RIFF")
	le.PutUint32(buf[4:], uint32(36+len(pcm)))
	copy(buf[8:], "WAVE")

	copy(buf[12:], "fmt ")
	le.PutUint32(buf[16:], 16)
	le.PutUint16(buf[20:], 1) // integer PCM
	le.PutUint16(buf[22:], uint16(channels))
	le.PutUint32(buf[24:], uint32(f.SampleRate))
	le.PutUint32(buf[28:], uint32(f.SampleRate*channels*2))
	le.PutUint16(buf[32:], uint16(channels*2))
	le.PutUint16(buf[34:], 16)

	copy(buf[36:], "data")
	le.PutUint32(buf[40:], uint32(len(pcm)))
	return append(buf, pcm...)
}
