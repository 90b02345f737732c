// Package portaudio plays PCM through the default output device using
// PortAudio.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/lettucespeak/pkg/playback"
)

// DefaultFramesPerBuffer is the stream buffer size in frames.
const DefaultFramesPerBuffer = 1024

var _ playback.Sink = (*Sink)(nil)

// Sink is a [playback.Sink] backed by the default PortAudio output device.
// A stream is opened per Play call so that the format can follow the
// synthesizer. Play calls are serialised.
type Sink struct {
	framesPerBuffer int

	mu     sync.Mutex
	closed bool
}

// Open initialises PortAudio. Call [Sink.Close] to release it.
func Open() (*Sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Sink{framesPerBuffer: DefaultFramesPerBuffer}, nil
}

// Play writes pcm to a fresh output stream. Cancellation is checked between
// buffers, so playback stops within one buffer of ctx ending.
func (s *Sink) Play(ctx context.Context, pcm []byte, f playback.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("portaudio: sink closed")
	}

	channels := max(f.Channels, 1)
	buffer := make([]float32, s.framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(f.SampleRate), s.framesPerBuffer, &buffer)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream (%s): %w", f, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}

	for pos := 0; pos < len(pcm); {
		if err := ctx.Err(); err != nil {
			_ = stream.Abort()
			return err
		}
		pos = fill(buffer, pcm, pos)
		if err := stream.Write(); err != nil {
			_ = stream.Abort()
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: stop output stream: %w", err)
	}
	return nil
}

// Close terminates PortAudio. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

// fill converts int16 samples from pcm, starting at byte offset pos, into
// buf and pads the rest with silence. It returns the next byte offset.
func fill(buf []float32, pcm []byte, pos int) int {
	for i := range buf {
		if pos+1 < len(pcm) {
			buf[i] = float32(int16(binary.LittleEndian.Uint16(pcm[pos:]))) / 32768
			pos += 2
		} else {
			buf[i] = 0
			pos = len(pcm)
		}
	}
	return pos
}
