// Package audiotest provides a scriptable audio backend whose voices only
// end when the test says so.
package audiotest

import (
	"context"
	"errors"
	"sync"

	"github.com/AaronLay10/StoryEngine/internal/audio"
	"github.com/AaronLay10/StoryEngine/internal/media"
)

// Backend records every voice it creates. Completions are delivered only
// through End.
type Backend struct {
	mu     sync.Mutex
	voices []*Voice
	ch     chan audio.Completion

	// FailNewVoice makes NewVoice return an error.
	FailNewVoice bool
}

func NewBackend() *Backend {
	return &Backend{ch: make(chan audio.Completion, 64)}
}

func (b *Backend) NewVoice(buf *media.Buffer, loop bool) (audio.Voice, error) {
	if b.FailNewVoice {
		return nil, errors.New("no output device")
	}
	v := &Voice{id: audio.NextVoiceID(), Buffer: buf, loop: loop, gain: 1}
	b.mu.Lock()
	b.voices = append(b.voices, v)
	b.mu.Unlock()
	return v, nil
}

func (b *Backend) Completions() <-chan audio.Completion {
	return b.ch
}

func (b *Backend) Close() error { return nil }

// Voices returns every voice created so far, oldest first.
func (b *Backend) Voices() []*Voice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Voice, len(b.voices))
	copy(out, b.voices)
	return out
}

// Last returns the most recently created voice, or nil.
func (b *Backend) Last() *Voice {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.voices) == 0 {
		return nil
	}
	return b.voices[len(b.voices)-1]
}

// Live returns voices that were started and not stopped or ended.
func (b *Backend) Live() []*Voice {
	var out []*Voice
	for _, v := range b.Voices() {
		if v.Playing() {
			out = append(out, v)
		}
	}
	return out
}

// End marks v as finished and returns the completion a real device would
// report. It is also queued on Completions.
func (b *Backend) End(v *Voice) audio.Completion {
	v.mu.Lock()
	v.ended = true
	v.mu.Unlock()
	c := audio.Completion{VoiceID: v.id}
	b.ch <- c
	return c
}

// Voice is a fake voice with observable state.
type Voice struct {
	id     uint64
	Buffer *media.Buffer

	mu      sync.Mutex
	loop    bool
	gain    float64
	started bool
	stops   int
	ended   bool
}

func (v *Voice) ID() uint64 { return v.id }

func (v *Voice) Start() error {
	v.mu.Lock()
	v.started = true
	v.mu.Unlock()
	return nil
}

func (v *Voice) Stop() {
	v.mu.Lock()
	v.stops++
	v.mu.Unlock()
}

func (v *Voice) SetLoop(loop bool) {
	v.mu.Lock()
	v.loop = loop
	v.mu.Unlock()
}

func (v *Voice) SetGain(gain float64) {
	v.mu.Lock()
	v.gain = gain
	v.mu.Unlock()
}

func (v *Voice) Gain() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gain
}

func (v *Voice) Loop() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loop
}

func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stops > 0
}

func (v *Voice) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.started && v.stops == 0 && !v.ended
}

// Resolver serves fixed clips by URL and counts lookups.
type Resolver struct {
	mu    sync.Mutex
	Clips map[string]*media.Buffer
	Calls map[string]int
}

func NewResolver(clips map[string]*media.Buffer) *Resolver {
	return &Resolver{Clips: clips, Calls: make(map[string]int)}
}

func (r *Resolver) FetchAudio(_ context.Context, url string) (*media.Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls[url]++
	buf, ok := r.Clips[url]
	return buf, ok
}
