package orchestrator

import (
	"context"
	"errors"
	"testing"
)

func TestWelcome(t *testing.T) {
	h := newHarness(t)
	if err := h.rt.Welcome(context.Background()); err != nil {
		t.Fatalf("Welcome: %v", err)
	}
	p := h.rend.last()
	if p.Kind != PayloadWelcome {
		t.Fatalf("expected welcome payload, got %s", p.Kind)
	}
	if p.Text != "Hello \nfriend" {
		t.Errorf("unexpected text %q", p.Text)
	}
	if p.Image != "start.png" {
		t.Errorf("expected start image, got %q", p.Image)
	}
	if len(p.Actions) != 1 || p.Actions[0].Kind != ActionStart || p.Actions[0].Label != "BEGIN YOUR ADVENTURE" {
		t.Errorf("unexpected actions %+v", p.Actions)
	}
	if h.rt.State().Started {
		t.Error("welcome must not start the journey")
	}
}

func TestWelcomeDefaultText(t *testing.T) {
	story, err := ParseStory([]byte(`[{"id":"s","name":"START"}]`), "START")
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t)
	rt := NewRuntime(story, h.cache, h.rt.player)
	rt.SetRenderer(h.rend)
	rt.Welcome(context.Background())
	if got := h.rend.last().Text; got != DefaultWelcomeText {
		t.Fatalf("expected default text, got %q", got)
	}
}

func TestStartSceneByID(t *testing.T) {
	h := newHarness(t)
	if err := h.rt.StartScene(context.Background()); err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	if got := h.rt.State().SceneID; got != "BEGIN YOUR ADVENTURE" {
		t.Fatalf("expected entry scene, got %q", got)
	}
}

func TestStartSceneByChoiceLabel(t *testing.T) {
	story, err := ParseStory([]byte(`[
		{"id":"intro","name":"START","choices":[{"label":"BEGIN YOUR ADVENTURE","next":"one"}]},
		{"id":"one","text":"One"}
	]`), "START")
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t)
	rt := NewRuntime(story, h.cache, h.rt.player)
	if err := rt.StartScene(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := rt.State().SceneID; got != "intro" {
		t.Fatalf("expected intro, got %q", got)
	}
}

func TestStartSceneMissingEntry(t *testing.T) {
	story, _ := ParseStory([]byte(`[{"id":"a","name":"START"}]`), "START")
	h := newHarness(t)
	rt := NewRuntime(story, h.cache, h.rt.player)
	rt.SetRenderer(h.rend)

	err := rt.StartScene(context.Background())
	var cerr *ContentError
	if !errors.As(err, &cerr) || cerr.Kind != NoEntryScene {
		t.Fatalf("expected no_entry_scene, got %v", err)
	}
	if p := h.rend.last(); p.Kind != PayloadError || p.Message != "Could not find first scene" {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestScenePayload(t *testing.T) {
	h := newHarness(t)
	if err := h.rt.ShowScene(context.Background(), "north"); err != nil {
		t.Fatal(err)
	}
	p := h.rend.last()
	if p.Kind != PayloadScene || p.SceneID != "north" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if p.Text != "North road." {
		t.Errorf("annotations not stripped: %q", p.Text)
	}
	if p.Image != "b.png" {
		t.Errorf("expected image b.png, got %q", p.Image)
	}
	if k := actionKinds(p); k[ActionChoice] != 2 || k[ActionExport] != 0 {
		t.Errorf("unexpected actions %+v", p.Actions)
	}
	if len(p.Tracks) != 2 || p.Tracks[0].Target != "strings" || p.Tracks[1].Target != "drums" {
		t.Errorf("unexpected track controls %+v", p.Tracks)
	}
	if p.SessionID != "test-session" {
		t.Errorf("expected session id on payload, got %q", p.SessionID)
	}
}

func TestMissingImageIsOmitted(t *testing.T) {
	h := newHarness(t)
	delete(h.fetch.data, "b.png")
	h.rt.ShowScene(context.Background(), "north")
	if p := h.rend.last(); p.Image != "" || p.Kind != PayloadScene {
		t.Fatalf("expected scene without image, got %+v", p)
	}
}

func TestTerminalSceneOffersExport(t *testing.T) {
	h := newHarness(t)
	h.rt.ShowScene(context.Background(), "end")
	p := h.rend.last()
	k := actionKinds(p)
	if k[ActionExport] != 2 || k[ActionChoice] != 0 {
		t.Fatalf("expected two export actions and no choices, got %+v", p.Actions)
	}
	targets := map[string]bool{}
	for _, a := range p.Actions {
		targets[a.Target] = true
	}
	if !targets["comic"] || !targets["audio"] {
		t.Fatalf("expected comic and audio exports, got %+v", p.Actions)
	}
}

func TestSceneNotFoundIsRecoverable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.rt.ShowScene(ctx, "nowhere")
	var cerr *ContentError
	if !errors.As(err, &cerr) || cerr.Kind != SceneNotFound || cerr.ID != "nowhere" {
		t.Fatalf("expected scene_not_found, got %v", err)
	}
	p := h.rend.last()
	if p.Kind != PayloadError || len(p.Actions) != 1 || p.Actions[0].Kind != ActionStart {
		t.Fatalf("expected error payload with return action, got %+v", p)
	}

	if err := h.rt.ShowScene(ctx, "south"); err != nil {
		t.Fatalf("runtime unusable after error: %v", err)
	}
}

func TestJourneyFirstVisitOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"BEGIN YOUR ADVENTURE", "north", "south", "BEGIN YOUR ADVENTURE"} {
		if err := h.rt.ShowScene(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	images, audio, texts := h.rt.Journey()
	if len(images) != 2 || images[0] != "a.png" || images[1] != "b.png" {
		t.Errorf("unexpected images %v", images)
	}
	if len(audio) != 2 || audio[0] != "a.wav" || audio[1] != "b.wav" {
		t.Errorf("unexpected audio %v", audio)
	}
	if len(texts) != 3 {
		t.Errorf("unexpected texts %v", texts)
	}
}

func TestAssetsFetchedOncePerURL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rt.Preload(ctx)
	for _, id := range []string{"BEGIN YOUR ADVENTURE", "south", "BEGIN YOUR ADVENTURE", "north", "north"} {
		h.rt.ShowScene(ctx, id)
	}
	for _, u := range []string{"a.png", "b.png", "a.wav", "b.wav", "s.wav", "d.wav"} {
		if got := h.fetch.count(u); got != 1 {
			t.Errorf("%s: expected 1 fetch, got %d", u, got)
		}
	}
}

func TestSlideshowOnScrollScene(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rt.ShowScene(ctx, "BEGIN YOUR ADVENTURE")
	h.rt.ShowScene(ctx, "end")
	p := h.rend.last()
	if !p.Scroll {
		t.Fatal("expected scroll flag")
	}
	if len(p.Slideshow) != 2 || p.Slideshow[0] != "a.png" || p.Slideshow[1] != "c.png" {
		t.Fatalf("unexpected slideshow %v", p.Slideshow)
	}
}

func TestLoopingSceneDefersChoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rt.StartScene(ctx)
	voice := h.backend.Last()
	if voice == nil || !voice.Loop() {
		t.Fatal("expected looping voice")
	}

	if err := h.rt.HandleChoice(ctx, "north"); err != nil {
		t.Fatal(err)
	}
	st := h.rt.State()
	if st.SceneID != "BEGIN YOUR ADVENTURE" || st.Pending != "north" {
		t.Fatalf("expected deferred transition, got %+v", st)
	}
	if voice.Loop() {
		t.Error("expected loop disabled")
	}
	if voice.Stopped() {
		t.Error("voice must keep playing to its natural end")
	}
	p := h.rend.last()
	if p.Kind != PayloadWaiting || !p.Waiting || len(p.Actions) != 1 || p.Actions[0].Target != "north" {
		t.Fatalf("expected waiting payload, got %+v", p)
	}

	n := len(h.rend.all())
	c := h.backend.End(voice)
	if err := h.rt.Dispatch(ctx, PlaybackCompleted{Completion: c}); err != nil {
		t.Fatal(err)
	}
	st = h.rt.State()
	if st.SceneID != "north" || st.Pending != "" {
		t.Fatalf("expected transition after completion, got %+v", st)
	}

	after := h.rend.all()[n:]
	if len(after) < 2 || after[0].Kind != PayloadWaiting || after[0].Waiting {
		t.Fatalf("expected waiting cleared before transition, got %+v", after)
	}
	if after[len(after)-1].SceneID != "north" {
		t.Fatalf("expected north payload last, got %+v", after[len(after)-1])
	}
}

func TestMultiTrackSceneCutsImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rt.ShowScene(ctx, "north")
	if live := h.backend.Live(); len(live) != 2 {
		t.Fatalf("expected 2 live tracks, got %d", len(live))
	}

	if err := h.rt.HandleChoice(ctx, "end"); err != nil {
		t.Fatal(err)
	}
	if got := h.rt.State().SceneID; got != "end" {
		t.Fatalf("expected immediate transition, got %q", got)
	}
	if live := h.backend.Live(); len(live) != 0 {
		t.Fatalf("expected tracks stopped, got %d live", len(live))
	}
}

func TestNonLoopingSceneTransitionsImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rt.ShowScene(ctx, "south")
	if err := h.rt.HandleChoice(ctx, "end"); err != nil {
		t.Fatal(err)
	}
	if got := h.rt.State().SceneID; got != "end" {
		t.Fatalf("expected end, got %q", got)
	}
}

func TestInvalidChoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rt.StartScene(ctx)
	before := len(h.rend.all())

	err := h.rt.HandleChoice(ctx, "end")
	var cerr *ContentError
	if !errors.As(err, &cerr) || cerr.Kind != InvalidChoice {
		t.Fatalf("expected invalid_choice, got %v", err)
	}
	st := h.rt.State()
	if st.SceneID != "BEGIN YOUR ADVENTURE" || st.Pending != "" {
		t.Fatalf("invalid choice changed state: %+v", st)
	}
	if len(h.rend.all()) != before {
		t.Error("invalid choice must not re-render")
	}
	if n, ok := h.rend.lastNotice(); !ok || n.Level != NoticeError {
		t.Fatalf("expected error notice, got %+v", n)
	}
	if !h.backend.Last().Loop() {
		t.Error("invalid choice must not touch playback")
	}
}

func TestChoiceToMissingScene(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rt.ShowScene(ctx, "south")
	err := h.rt.HandleChoice(ctx, "nowhere")
	var cerr *ContentError
	if !errors.As(err, &cerr) || cerr.Kind != SceneNotFound {
		t.Fatalf("expected scene_not_found, got %v", err)
	}
}

func TestStaleCompletionIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rt.StartScene(ctx)
	old := h.backend.Last()
	h.rt.HandleChoice(ctx, "north")

	// Manual jump supersedes the queued choice.
	h.rt.ShowScene(ctx, "south")
	if !old.Stopped() {
		t.Fatal("expected old voice stopped")
	}

	h.rt.Dispatch(ctx, PlaybackCompleted{Completion: h.backend.End(old)})
	if got := h.rt.State().SceneID; got != "south" {
		t.Fatalf("stale completion caused transition to %q", got)
	}
}

func TestGatingWithUnresolvedAudio(t *testing.T) {
	h := newHarness(t)
	delete(h.fetch.data, "a.wav")
	ctx := context.Background()
	h.rt.StartScene(ctx)

	if err := h.rt.HandleChoice(ctx, "north"); err != nil {
		t.Fatal(err)
	}
	st := h.rt.State()
	if st.SceneID != "north" || st.Pending != "" {
		t.Fatalf("expected immediate transition with nothing playing, got %+v", st)
	}
}

func TestTrackSwitchIntent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rt.ShowScene(ctx, "north")

	if err := h.rt.Dispatch(ctx, TrackSwitch{Label: "drums"}); err != nil {
		t.Fatal(err)
	}
	audible := 0
	for _, v := range h.backend.Live() {
		if v.Gain() == 1 {
			audible++
		}
	}
	if audible != 1 {
		t.Fatalf("expected one audible track, got %d", audible)
	}
	if h.rt.SwitchTrack("vocals") {
		t.Fatal("unknown label should be ignored")
	}
}

func TestAtMostOnePlaybackGroup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"north", "BEGIN YOUR ADVENTURE", "north", "south", "north"} {
		h.rt.ShowScene(ctx, id)
		single, tracks := h.rt.player.Playing()
		if single && tracks > 0 {
			t.Fatalf("after %s: single and multi playing together", id)
		}
	}
}

func TestSkinChanged(t *testing.T) {
	h := newHarness(t)
	h.rt.SkinChanged("noir")
	if got := h.rt.State().Skin; got != "noir" {
		t.Fatalf("expected skin noir, got %q", got)
	}
}

func TestWireIntent(t *testing.T) {
	cases := []struct {
		in   WireIntent
		want Intent
	}{
		{WireIntent{Type: "choice", Next: "x"}, ChoiceSelected{Next: "x"}},
		{WireIntent{Type: "track", Label: "drums"}, TrackSwitch{Label: "drums"}},
		{WireIntent{Type: "export", Kind: "comic"}, ExportRequested{Kind: "comic"}},
		{WireIntent{Type: "start"}, StartRequested{}},
	}
	for _, c := range cases {
		got, err := c.in.Intent()
		if err != nil {
			t.Fatalf("%+v: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("%+v: got %#v, want %#v", c.in, got, c.want)
		}
	}
	for _, bad := range []WireIntent{{Type: "choice"}, {Type: "export", Kind: "pdf"}, {Type: "teleport"}} {
		if _, err := bad.Intent(); err == nil {
			t.Errorf("%+v: expected error", bad)
		}
	}
}
