// Package mixdown concatenates decoded clips into one recording and encodes
// it as a canonical 16-bit PCM WAV file.
package mixdown

import (
	"errors"
	"fmt"

	"github.com/AaronLay10/StoryEngine/internal/media"
)

// ErrEmpty is returned when there is nothing to render.
var ErrEmpty = errors.New("nothing to export")

// Render places clips back to back on a canvas of sampleRate and channels.
// Nil or empty clips contribute no time. Mono clips are copied into every
// output channel. The output length is computed before allocation.
func Render(clips []*media.Buffer, sampleRate, channels int) (*media.Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid output format: %d Hz, %d channels", sampleRate, channels)
	}

	total := 0
	for i, c := range clips {
		if c == nil || c.Frames() == 0 {
			continue
		}
		if c.SampleRate != sampleRate {
			return nil, fmt.Errorf("clip %d: sample rate %d, want %d", i, c.SampleRate, sampleRate)
		}
		total += c.Frames()
	}
	if total == 0 {
		return nil, ErrEmpty
	}

	out := media.NewBuffer(sampleRate, channels, total)
	offset := 0
	for _, c := range clips {
		if c == nil || c.Frames() == 0 {
			continue
		}
		for ch := 0; ch < channels; ch++ {
			src := c.Data[0]
			if ch < c.Channels() {
				src = c.Data[ch]
			} else if c.Channels() > 1 {
				// stereo into a wider layout: leave silent
				continue
			}
			copy(out.Data[ch][offset:], src)
		}
		offset += c.Frames()
	}
	return out, nil
}
