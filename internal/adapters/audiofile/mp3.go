package audiofile

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// decodeMP3 decodes to mono. go-mp3 always yields 16-bit little-endian stereo.
func decodeMP3(r io.Reader) ([]float32, int, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("audiofile: mp3 decode failed: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("audiofile: mp3 read failed: %w", err)
	}

	const frameBytes = 4
	out := make([]float32, len(raw)/frameBytes)
	for i := range out {
		b := raw[i*frameBytes:]
		left := int16(b[0]) | int16(b[1])<<8
		right := int16(b[2]) | int16(b[3])<<8
		out[i] = float32((float64(left) + float64(right)) / 2 / 32768.0)
	}
	if len(out) == 0 {
		return nil, 0, fmt.Errorf("audiofile: mp3 contains no samples")
	}
	return out, decoder.SampleRate(), nil
}
