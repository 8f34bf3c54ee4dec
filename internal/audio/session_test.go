package audio_test

import (
	"context"
	"testing"
	"time"

	"github.com/AaronLay10/StoryEngine/internal/audio"
	"github.com/AaronLay10/StoryEngine/internal/audio/audiotest"
	"github.com/AaronLay10/StoryEngine/internal/media"
)

func clip(frames int) *media.Buffer {
	return media.NewBuffer(44100, 2, frames)
}

func newSession() (*audio.Session, *audiotest.Backend, *audiotest.Resolver) {
	backend := audiotest.NewBackend()
	res := audiotest.NewResolver(map[string]*media.Buffer{
		"a.wav":    clip(100),
		"b.wav":    clip(200),
		"drums":    clip(50),
		"strings":  clip(50),
		"ambience": clip(50),
	})
	return audio.NewSession(backend, res), backend, res
}

func assertExclusive(t *testing.T, s *audio.Session) {
	t.Helper()
	single, tracks := s.Playing()
	if single && tracks > 0 {
		t.Fatalf("single voice and %d multi-track voices active together", tracks)
	}
}

func TestPlaySingleReplacesCurrent(t *testing.T) {
	s, backend, _ := newSession()
	ctx := context.Background()

	if !s.PlaySingle(ctx, "a.wav", true, nil) {
		t.Fatal("expected a.wav to play")
	}
	first := backend.Last()
	if !first.Playing() || !first.Loop() {
		t.Fatal("expected first voice playing and looping")
	}

	if !s.PlaySingle(ctx, "b.wav", false, nil) {
		t.Fatal("expected b.wav to play")
	}
	if !first.Stopped() {
		t.Error("expected first voice stopped")
	}
	if live := backend.Live(); len(live) != 1 {
		t.Fatalf("expected 1 live voice, got %d", len(live))
	}
	assertExclusive(t, s)
}

func TestPlaySingleUnresolvedIsSilent(t *testing.T) {
	s, backend, _ := newSession()
	ctx := context.Background()

	s.PlaySingle(ctx, "a.wav", true, nil)
	if s.PlaySingle(ctx, "missing.wav", true, nil) {
		t.Fatal("expected unresolved clip not to play")
	}
	if live := backend.Live(); len(live) != 0 {
		t.Fatalf("expected previous voice stopped and nothing playing, got %d live", len(live))
	}
	if single, _ := s.Playing(); single {
		t.Fatal("expected no single voice")
	}
}

func TestOnEndedFiresOnceAndClearsWaitingFirst(t *testing.T) {
	s, backend, _ := newSession()
	var order []string
	s.SetWaitingClearer(func() { order = append(order, "clear") })

	s.PlaySingle(context.Background(), "a.wav", false, func() { order = append(order, "ended") })
	c := backend.End(backend.Last())

	if !s.HandleCompletion(c) {
		t.Fatal("expected hook to run")
	}
	if s.HandleCompletion(c) {
		t.Fatal("expected duplicate completion to be dropped")
	}
	if len(order) != 2 || order[0] != "clear" || order[1] != "ended" {
		t.Fatalf("unexpected call order %v", order)
	}
	if single, _ := s.Playing(); single {
		t.Fatal("expected ended voice released")
	}
}

func TestStaleCompletionSuppressed(t *testing.T) {
	s, backend, _ := newSession()
	ctx := context.Background()
	fired := 0

	s.PlaySingle(ctx, "a.wav", false, func() { fired++ })
	old := backend.Last()
	s.PlaySingle(ctx, "b.wav", false, nil)

	if s.HandleCompletion(audio.Completion{VoiceID: old.ID()}) {
		t.Fatal("expected stale completion to be ignored")
	}
	if fired != 0 {
		t.Fatalf("expected hook not to fire, fired %d", fired)
	}
}

func TestManualStopNeverFiresHook(t *testing.T) {
	s, backend, _ := newSession()
	fired := 0

	s.PlaySingle(context.Background(), "a.wav", true, func() { fired++ })
	v := backend.Last()
	s.StopSingle()
	s.StopSingle()

	if !v.Stopped() {
		t.Fatal("expected voice stopped")
	}
	s.HandleCompletion(audio.Completion{VoiceID: v.ID()})
	if fired != 0 {
		t.Fatalf("expected no hook after manual stop, fired %d", fired)
	}
}

func TestPlayMultiGains(t *testing.T) {
	s, backend, _ := newSession()
	tracks := []audio.Track{
		{Label: "strings", URL: "strings"},
		{Label: "broken", URL: "missing"},
		{Label: "drums", URL: "drums"},
	}

	if n := s.PlayMulti(context.Background(), tracks, nil); n != 2 {
		t.Fatalf("expected 2 tracks, got %d", n)
	}
	gains := s.Gains()
	if len(gains) != 2 || gains["strings"] != 1 || gains["drums"] != 0 {
		t.Fatalf("unexpected gains %v", gains)
	}
	for _, v := range backend.Live() {
		if !v.Loop() {
			t.Error("expected every track looping")
		}
	}
	assertExclusive(t, s)
}

func TestSwitchTrack(t *testing.T) {
	s, backend, _ := newSession()
	s.PlayMulti(context.Background(), []audio.Track{
		{Label: "strings", URL: "strings"},
		{Label: "drums", URL: "drums"},
	}, nil)

	if !s.SwitchTrack("drums") {
		t.Fatal("expected switch to drums")
	}
	gains := s.Gains()
	if gains["strings"] != 0 || gains["drums"] != 1 {
		t.Fatalf("unexpected gains %v", gains)
	}
	audible := 0
	for _, v := range backend.Live() {
		if v.Gain() == 1 {
			audible++
		}
	}
	if audible != 1 {
		t.Fatalf("expected exactly one audible voice, got %d", audible)
	}

	before := s.Gains()
	if s.SwitchTrack("vocals") {
		t.Fatal("expected unknown label to be a no-op")
	}
	after := s.Gains()
	for k, v := range before {
		if after[k] != v {
			t.Fatalf("gain map changed on unknown label: %v -> %v", before, after)
		}
	}
}

func TestPlayMultiEmptyAndAllFailed(t *testing.T) {
	s, backend, _ := newSession()
	ctx := context.Background()

	s.PlaySingle(ctx, "a.wav", true, nil)
	if n := s.PlayMulti(ctx, nil, nil); n != 0 {
		t.Fatalf("expected 0 tracks, got %d", n)
	}
	if live := backend.Live(); len(live) != 0 {
		t.Fatalf("expected previous playback stopped, got %d live", len(live))
	}
	if n := s.PlayMulti(ctx, []audio.Track{{Label: "x", URL: "nope"}}, nil); n != 0 {
		t.Fatalf("expected 0 tracks, got %d", n)
	}
	if len(s.Gains()) != 0 {
		t.Fatal("expected empty gain map")
	}
}

func TestMultiHookFiresAtMostOncePerSet(t *testing.T) {
	s, backend, _ := newSession()
	fired := 0
	s.PlayMulti(context.Background(), []audio.Track{
		{Label: "strings", URL: "strings"},
		{Label: "drums", URL: "drums"},
	}, func() { fired++ })

	for _, v := range backend.Live() {
		s.HandleCompletion(backend.End(v))
	}
	if fired != 1 {
		t.Fatalf("expected hook once, fired %d", fired)
	}
}

func TestExclusiveAcrossSequences(t *testing.T) {
	s, _, _ := newSession()
	ctx := context.Background()
	multi := []audio.Track{{Label: "strings", URL: "strings"}, {Label: "ambience", URL: "ambience"}}

	s.PlayMulti(ctx, multi, nil)
	assertExclusive(t, s)
	s.PlaySingle(ctx, "a.wav", true, nil)
	assertExclusive(t, s)
	if _, tracks := s.Playing(); tracks != 0 {
		t.Fatal("expected multi-track set stopped")
	}
	s.PlayMulti(ctx, multi, nil)
	assertExclusive(t, s)
	if single, _ := s.Playing(); single {
		t.Fatal("expected single voice stopped")
	}
	s.StopMulti()
	if len(s.Gains()) != 0 {
		t.Fatal("expected gain map cleared")
	}
}

func TestDisableLoop(t *testing.T) {
	s, backend, _ := newSession()
	if s.DisableLoop() {
		t.Fatal("expected no single voice")
	}
	s.PlaySingle(context.Background(), "a.wav", true, nil)
	if !s.DisableLoop() {
		t.Fatal("expected single voice")
	}
	if backend.Last().Loop() {
		t.Fatal("expected loop disabled")
	}
}

func TestNullBackendCompletes(t *testing.T) {
	b := audio.NewNullBackend()
	defer b.Close()

	buf := media.NewBuffer(1000, 1, 5) // 5ms
	v, err := b.NewVoice(buf, false)
	if err != nil {
		t.Fatal(err)
	}
	v.Start()

	select {
	case c := <-b.Completions():
		if c.VoiceID != v.ID() {
			t.Fatalf("expected completion for %d, got %d", v.ID(), c.VoiceID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestNullBackendStopSuppressesCompletion(t *testing.T) {
	b := audio.NewNullBackend()
	defer b.Close()

	v, _ := b.NewVoice(media.NewBuffer(1000, 1, 20), false)
	v.Start()
	v.Stop()
	v.Stop()

	select {
	case c := <-b.Completions():
		t.Fatalf("unexpected completion %+v", c)
	case <-time.After(60 * time.Millisecond):
	}
}
