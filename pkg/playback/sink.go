package playback

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Sink plays PCM audio, typically on the default output device.
type Sink interface {
	// Play blocks until pcm has been played or ctx is cancelled, in which
	// case playback stops as soon as possible and ctx.Err() is returned.
	Play(ctx context.Context, pcm []byte, f Format) error
}

// SinkFunc adapts an ordinary function to the [Sink] interface.
type SinkFunc func(ctx context.Context, pcm []byte, f Format) error

// Play calls fn(ctx, pcm, f).
func (fn SinkFunc) Play(ctx context.Context, pcm []byte, f Format) error {
	return fn(ctx, pcm, f)
}

// Silent is a [Sink] that produces no sound but takes as long as the audio
// would. It stands in when no output device is available.
type Silent struct{}

// Play waits for the duration of pcm or until ctx is cancelled.
func (Silent) Play(ctx context.Context, pcm []byte, f Format) error {
	t := time.NewTimer(f.Duration(len(pcm)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WAVWriter is a [Sink] that writes each played buffer to W as a complete
// WAV file instead of producing sound.
type WAVWriter struct {
	W io.Writer
}

// Play encodes pcm and writes it to w.W.
func (w WAVWriter) Play(ctx context.Context, pcm []byte, f Format) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := w.W.Write(EncodeWAV(pcm, f)); err != nil {
		return fmt.Errorf("playback: write WAV: %w", err)
	}
	return nil
}
