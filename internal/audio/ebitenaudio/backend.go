package ebitenaudio

import (
	"fmt"
	"io"
	"sync"
	"time"

	ebaudio "github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/AaronLay10/StoryEngine/internal/audio"
	"github.com/AaronLay10/StoryEngine/internal/media"
)

const (
	playerBuffer = 50 * time.Millisecond
	pollInterval = 20 * time.Millisecond
)

// Backend plays voices on the process-wide Ebitengine audio context.
// Only one Backend may exist per process.
type Backend struct {
	ctx         *ebaudio.Context
	sampleRate  int
	completions chan audio.Completion
	done        chan struct{}
	closeOnce   sync.Once
}

func NewBackend(sampleRate int) *Backend {
	return &Backend{
		ctx:         ebaudio.NewContext(sampleRate),
		sampleRate:  sampleRate,
		completions: make(chan audio.Completion, 16),
		done:        make(chan struct{}),
	}
}

// Decoder returns a clip decoder matching the backend's sample rate.
func (b *Backend) Decoder() Decoder {
	return Decoder{SampleRate: b.sampleRate}
}

func (b *Backend) NewVoice(buf *media.Buffer, loop bool) (audio.Voice, error) {
	if buf.SampleRate != b.sampleRate {
		return nil, fmt.Errorf("clip sample rate %d does not match output rate %d", buf.SampleRate, b.sampleRate)
	}
	src := &loopReader{pcm: interleave(buf), loop: loop}
	p, err := b.ctx.NewPlayer(src)
	if err != nil {
		return nil, fmt.Errorf("new player: %w", err)
	}
	p.SetBufferSize(playerBuffer)
	return &voice{
		id:      audio.NextVoiceID(),
		backend: b,
		player:  p,
		src:     src,
		gain:    1,
	}, nil
}

func (b *Backend) Completions() <-chan audio.Completion {
	return b.completions
}

func (b *Backend) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

func (b *Backend) complete(id uint64) {
	select {
	case b.completions <- audio.Completion{VoiceID: id}:
	case <-b.done:
	}
}

// loopReader serves interleaved PCM, wrapping to the start while loop is set.
type loopReader struct {
	mu      sync.Mutex
	pcm     []byte
	pos     int
	loop    bool
	drained bool
}

func (r *loopReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for n < len(p) && len(r.pcm) > 0 {
		if r.pos >= len(r.pcm) {
			if !r.loop {
				break
			}
			r.pos = 0
		}
		c := copy(p[n:], r.pcm[r.pos:])
		n += c
		r.pos += c
	}
	if n == 0 {
		r.drained = true
		return 0, io.EOF
	}
	return n, nil
}

func (r *loopReader) setLoop(loop bool) {
	r.mu.Lock()
	r.loop = loop
	r.mu.Unlock()
}

func (r *loopReader) isDrained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drained
}

type voice struct {
	id      uint64
	backend *Backend
	player  *ebaudio.Player
	src     *loopReader

	mu      sync.Mutex
	gain    float64
	started bool
	stopped bool
}

func (v *voice) ID() uint64 { return v.id }

func (v *voice) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped || v.started {
		return nil
	}
	v.started = true
	v.player.SetVolume(v.gain)
	v.player.Play()
	go v.watch()
	return nil
}

// watch reports a natural end once the source is drained and the player has
// flushed its buffer.
func (v *voice) watch() {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-v.backend.done:
			return
		case <-t.C:
		}

		v.mu.Lock()
		if v.stopped {
			v.mu.Unlock()
			return
		}
		if v.src.isDrained() && !v.player.IsPlaying() {
			v.stopped = true
			v.player.Close()
			v.mu.Unlock()
			v.backend.complete(v.id)
			return
		}
		v.mu.Unlock()
	}
}

func (v *voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped {
		return
	}
	v.stopped = true
	v.player.Pause()
	v.player.Close()
}

func (v *voice) SetLoop(loop bool) {
	v.src.setLoop(loop)
}

func (v *voice) SetGain(gain float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gain = gain
	if !v.stopped {
		v.player.SetVolume(gain)
	}
}

func (v *voice) Gain() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gain
}
