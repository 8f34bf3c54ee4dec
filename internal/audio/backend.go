// Package audio drives scene playback: one single voice or one multi-track
// set at a time, with natural-end completions reported back to the caller.
package audio

import (
	"context"
	"sync/atomic"

	"github.com/AaronLay10/StoryEngine/internal/media"
)

// Completion reports that a voice reached its natural end.
// Backends never report a completion for a voice that was stopped.
type Completion struct {
	VoiceID uint64
}

// Voice is one live playback of a decoded buffer. Voices are never reused:
// once stopped or ended they cannot be started again.
type Voice interface {
	ID() uint64
	Start() error
	// Stop halts playback and releases the voice. Calling it more than once,
	// or after the voice ended, has no effect.
	Stop()
	SetLoop(loop bool)
	SetGain(gain float64)
	Gain() float64
}

// Backend creates voices and reports their natural ends on Completions.
type Backend interface {
	NewVoice(buf *media.Buffer, loop bool) (Voice, error)
	Completions() <-chan Completion
	Close() error
}

// Resolver yields decoded clips by URL; *media.Cache satisfies it.
type Resolver interface {
	FetchAudio(ctx context.Context, url string) (*media.Buffer, bool)
}

var voiceSeq atomic.Uint64

// NextVoiceID returns a process-unique voice identifier for backends.
func NextVoiceID() uint64 {
	return voiceSeq.Add(1)
}
