// Package media resolves story assets (images and audio clips) by URL,
// decoding each at most once and caching the result for the session.
package media

import "time"

// Buffer is a decoded audio clip in planar float32 samples in [-1, 1].
type Buffer struct {
	SampleRate int
	Data       [][]float32
}

// NewBuffer allocates a silent buffer of the given shape.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	data := make([][]float32, channels)
	for i := range data {
		data[i] = make([]float32, frames)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}

func (b *Buffer) Channels() int {
	return len(b.Data)
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Image is a fetched image verified to decode.
type Image struct {
	URL    string
	Data   []byte
	Format string
	Width  int
	Height int
}
