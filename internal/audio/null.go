package audio

import (
	"sync"
	"time"

	"github.com/AaronLay10/StoryEngine/internal/media"
)

// minLoopPeriod keeps zero-length clips from spinning.
const minLoopPeriod = time.Millisecond

// NullBackend plays nothing. Each voice runs on a wall-clock timer for the
// duration of its buffer, so completions arrive as they would on real
// hardware. Used on hosts without a sound device.
type NullBackend struct {
	completions chan Completion
	done        chan struct{}
	closeOnce   sync.Once
}

func NewNullBackend() *NullBackend {
	return &NullBackend{
		completions: make(chan Completion, 16),
		done:        make(chan struct{}),
	}
}

func (b *NullBackend) NewVoice(buf *media.Buffer, loop bool) (Voice, error) {
	period := buf.Duration()
	if period < minLoopPeriod {
		period = minLoopPeriod
	}
	return &nullVoice{
		id:      NextVoiceID(),
		backend: b,
		period:  period,
		loop:    loop,
		gain:    1,
	}, nil
}

func (b *NullBackend) Completions() <-chan Completion {
	return b.completions
}

func (b *NullBackend) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

func (b *NullBackend) complete(id uint64) {
	select {
	case b.completions <- Completion{VoiceID: id}:
	case <-b.done:
	}
}

type nullVoice struct {
	id      uint64
	backend *NullBackend
	period  time.Duration

	mu      sync.Mutex
	loop    bool
	gain    float64
	timer   *time.Timer
	stopped bool
}

func (v *nullVoice) ID() uint64 { return v.id }

func (v *nullVoice) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped || v.timer != nil {
		return nil
	}
	v.timer = time.AfterFunc(v.period, v.tick)
	return nil
}

func (v *nullVoice) tick() {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	if v.loop {
		v.timer.Reset(v.period)
		v.mu.Unlock()
		return
	}
	v.stopped = true
	v.mu.Unlock()
	v.backend.complete(v.id)
}

func (v *nullVoice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped {
		return
	}
	v.stopped = true
	if v.timer != nil {
		v.timer.Stop()
	}
}

func (v *nullVoice) SetLoop(loop bool) {
	v.mu.Lock()
	v.loop = loop
	v.mu.Unlock()
}

func (v *nullVoice) SetGain(gain float64) {
	v.mu.Lock()
	v.gain = gain
	v.mu.Unlock()
}

func (v *nullVoice) Gain() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gain
}
