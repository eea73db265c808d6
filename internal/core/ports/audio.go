package ports

import "context"

// AudioSource opens a capture stream. Open fails with domain.ErrPermissionDenied
// (wrapped) when the device cannot be acquired.
type AudioSource interface {
	Open(ctx context.Context) (AudioStream, error)
}

// AudioStream yields fixed-size windows of mono samples normalized to [-1, 1].
type AudioStream interface {
	// Read fills window completely or returns an error. io.EOF ends the stream.
	Read(window []float32) error
	SampleRate() int
	Close() error
}
