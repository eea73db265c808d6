package audiofile

import (
	"fmt"
	"io"

	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("audiofile: invalid wav file: %w", domain.ErrInvalidInput)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audiofile: decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fmt.Errorf("audiofile: invalid wav buffer: %w", domain.ErrInvalidInput)
	}
	if buf.Format.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("audiofile: invalid wav sample rate %d: %w", buf.Format.SampleRate, domain.ErrInvalidInput)
	}
	return downmix(buf), buf.Format.SampleRate, nil
}

// downmix averages interleaved channels into one.
func downmix(buf *audio.Float32Buffer) []float32 {
	ch := buf.Format.NumChannels
	if ch == 1 {
		return buf.Data
	}
	frames := len(buf.Data) / ch
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < ch; c++ {
			sum += buf.Data[i*ch+c]
		}
		out[i] = sum / float32(ch)
	}
	return out
}
