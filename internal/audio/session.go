package audio

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/StoryEngine/internal/events"
	"github.com/AaronLay10/StoryEngine/internal/media"
)

// Track is one labelled stem of a multi-track scene.
type Track struct {
	Label string
	URL   string
}

type trackVoice struct {
	label string
	voice Voice
}

// endHook is shared by every voice of one playback group so the group's
// onEnded runs at most once.
type endHook struct {
	fn    func()
	fired bool
}

// Session owns the currently playing group. At most one of the single voice
// and the multi-track set is non-empty at any time.
type Session struct {
	backend Backend
	assets  Resolver

	mu      sync.Mutex
	single  Voice
	singleU string
	multi   []trackVoice
	gains   map[string]float64
	hooks   map[uint64]*endHook
	waiting func()
}

func NewSession(backend Backend, assets Resolver) *Session {
	return &Session{
		backend: backend,
		assets:  assets,
		gains:   make(map[string]float64),
		hooks:   make(map[uint64]*endHook),
	}
}

// SetWaitingClearer registers fn to run before any onEnded callback, used to
// clear a pending "waiting" indicator in the presentation layer.
func (s *Session) SetWaitingClearer(fn func()) {
	s.mu.Lock()
	s.waiting = fn
	s.mu.Unlock()
}

// Completions exposes the backend's natural-end events.
func (s *Session) Completions() <-chan Completion {
	return s.backend.Completions()
}

// PlaySingle stops whatever is playing and starts url from offset zero. If
// the clip cannot be resolved nothing plays and false is returned.
func (s *Session) PlaySingle(ctx context.Context, url string, loop bool, onEnded func()) bool {
	s.StopSingle()
	s.StopMulti()

	buf, ok := s.assets.FetchAudio(ctx, url)
	if !ok {
		events.Emit("warning", "audio.unavailable", "clip could not be resolved", map[string]interface{}{
			"url": url,
		})
		return false
	}

	voice, err := s.backend.NewVoice(buf, loop)
	if err != nil {
		events.Emit("error", "audio.unavailable", err.Error(), map[string]interface{}{
			"url": url,
		})
		return false
	}

	s.mu.Lock()
	s.stopAllLocked()
	s.single = voice
	s.singleU = url
	if onEnded != nil {
		s.hooks[voice.ID()] = &endHook{fn: onEnded}
	}
	s.mu.Unlock()

	if err := voice.Start(); err != nil {
		s.StopSingle()
		events.Emit("error", "audio.unavailable", err.Error(), map[string]interface{}{
			"url": url,
		})
		return false
	}

	events.Emit("info", "audio.started", "", map[string]interface{}{
		"url":      url,
		"loop":     loop,
		"voice_id": voice.ID(),
		"duration": buf.Duration().String(),
	})
	return true
}

// StopSingle stops the single voice, if any, and any multi-track voices with it.
func (s *Session) StopSingle() {
	s.mu.Lock()
	if s.single == nil {
		s.mu.Unlock()
		return
	}
	url := s.singleU
	s.stopAllLocked()
	s.mu.Unlock()

	events.Emit("debug", "audio.stopped", "", map[string]interface{}{"url": url})
}

// PlayMulti stops current playback and starts every resolvable track together,
// all looping. The first resolved track in declared order is audible; the
// others start at gain zero. Tracks that fail to resolve are dropped.
func (s *Session) PlayMulti(ctx context.Context, tracks []Track, onEnded func()) int {
	s.StopSingle()
	s.StopMulti()
	if len(tracks) == 0 {
		return 0
	}

	bufs := make([]*media.Buffer, len(tracks))
	var g errgroup.Group
	for i, t := range tracks {
		i, t := i, t
		g.Go(func() error {
			if buf, ok := s.assets.FetchAudio(ctx, t.URL); ok {
				bufs[i] = buf
			}
			return nil
		})
	}
	_ = g.Wait()

	set := make([]trackVoice, 0, len(tracks))
	for i, t := range tracks {
		if bufs[i] == nil {
			events.Emit("warning", "audio.unavailable", "track dropped", map[string]interface{}{
				"label": t.Label,
				"url":   t.URL,
			})
			continue
		}
		v, err := s.backend.NewVoice(bufs[i], true)
		if err != nil {
			events.Emit("error", "audio.unavailable", err.Error(), map[string]interface{}{
				"label": t.Label,
				"url":   t.URL,
			})
			continue
		}
		set = append(set, trackVoice{label: t.Label, voice: v})
	}
	if len(set) == 0 {
		return 0
	}

	s.mu.Lock()
	s.stopAllLocked()
	s.multi = set
	var hook *endHook
	if onEnded != nil {
		hook = &endHook{fn: onEnded}
	}
	for i, tv := range set {
		gain := 0.0
		if i == 0 {
			gain = 1
		}
		tv.voice.SetGain(gain)
		s.gains[tv.label] = gain
		if hook != nil {
			s.hooks[tv.voice.ID()] = hook
		}
	}
	s.mu.Unlock()

	for _, tv := range set {
		if err := tv.voice.Start(); err != nil {
			events.Emit("error", "system.error", "start track: "+err.Error(), map[string]interface{}{
				"label": tv.label,
			})
		}
	}

	events.Emit("info", "audio.started", "", map[string]interface{}{
		"tracks": len(set),
		"active": set[0].label,
	})
	return len(set)
}

// SwitchTrack makes label the only audible track. Unknown labels are ignored.
func (s *Session) SwitchTrack(label string) bool {
	s.mu.Lock()
	if _, ok := s.gains[label]; !ok {
		s.mu.Unlock()
		return false
	}
	for _, tv := range s.multi {
		gain := 0.0
		if tv.label == label {
			gain = 1
		}
		tv.voice.SetGain(gain)
		s.gains[tv.label] = gain
	}
	s.mu.Unlock()

	events.Emit("info", "track.switched", "", map[string]interface{}{"label": label})
	return true
}

// StopMulti stops every multi-track voice and clears the gain map.
func (s *Session) StopMulti() {
	s.mu.Lock()
	if len(s.multi) == 0 {
		s.mu.Unlock()
		return
	}
	n := len(s.multi)
	s.stopAllLocked()
	s.mu.Unlock()

	events.Emit("debug", "audio.stopped", "", map[string]interface{}{"tracks": n})
}

// DisableLoop lets the single voice run to its natural end. It reports
// whether a single voice was active.
func (s *Session) DisableLoop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.single == nil {
		return false
	}
	s.single.SetLoop(false)
	return true
}

// HandleCompletion runs the onEnded hook for c's voice if that voice is still
// current and its group's hook has not fired yet. Stale completions for
// stopped or superseded voices are dropped. It reports whether a hook ran.
func (s *Session) HandleCompletion(c Completion) bool {
	s.mu.Lock()
	hook, ok := s.hooks[c.VoiceID]
	current := s.isCurrentLocked(c.VoiceID)
	if !ok || !current || hook.fired {
		if current && s.single != nil && s.single.ID() == c.VoiceID {
			s.releaseSingleLocked()
		}
		s.mu.Unlock()
		return false
	}
	hook.fired = true
	var url string
	if s.single != nil && s.single.ID() == c.VoiceID {
		url = s.singleU
		s.releaseSingleLocked()
	}
	clearWaiting := s.waiting
	s.mu.Unlock()

	events.Emit("info", "audio.ended", "", map[string]interface{}{
		"voice_id": c.VoiceID,
		"url":      url,
	})
	if clearWaiting != nil {
		clearWaiting()
	}
	hook.fn()
	return true
}

// Playing reports whether a single voice is active and how many multi-track
// voices are live.
func (s *Session) Playing() (single bool, tracks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.single != nil, len(s.multi)
}

// Gains returns a copy of the current label to gain map.
func (s *Session) Gains() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.gains))
	for k, v := range s.gains {
		out[k] = v
	}
	return out
}

// Close stops playback and releases the backend.
func (s *Session) Close() error {
	s.mu.Lock()
	s.stopAllLocked()
	s.mu.Unlock()
	return s.backend.Close()
}

func (s *Session) isCurrentLocked(id uint64) bool {
	if s.single != nil && s.single.ID() == id {
		return true
	}
	for _, tv := range s.multi {
		if tv.voice.ID() == id {
			return true
		}
	}
	return false
}

// releaseSingleLocked forgets a single voice that already ended on its own.
func (s *Session) releaseSingleLocked() {
	delete(s.hooks, s.single.ID())
	s.single = nil
	s.singleU = ""
}

func (s *Session) stopAllLocked() {
	if s.single != nil {
		s.single.Stop()
		delete(s.hooks, s.single.ID())
		s.single = nil
		s.singleU = ""
	}
	for _, tv := range s.multi {
		tv.voice.Stop()
		delete(s.hooks, tv.voice.ID())
	}
	s.multi = nil
	s.gains = make(map[string]float64)
}
