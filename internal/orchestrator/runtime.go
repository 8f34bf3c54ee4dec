package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/StoryEngine/internal/audio"
	"github.com/AaronLay10/StoryEngine/internal/config"
	"github.com/AaronLay10/StoryEngine/internal/events"
	"github.com/AaronLay10/StoryEngine/internal/media"
)

const inboxSize = 64

// Assets resolves scene media; *media.Cache satisfies it.
type Assets interface {
	FetchImage(ctx context.Context, url string) (*media.Image, bool)
	FetchAudio(ctx context.Context, url string) (*media.Buffer, bool)
	Preload(ctx context.Context, urls []string)
	PreloadAudio(ctx context.Context, urls []string)
}

// Player is the audio session the runtime drives; *audio.Session satisfies it.
type Player interface {
	PlaySingle(ctx context.Context, url string, loop bool, onEnded func()) bool
	StopSingle()
	PlayMulti(ctx context.Context, tracks []audio.Track, onEnded func()) int
	SwitchTrack(label string) bool
	StopMulti()
	DisableLoop() bool
	HandleCompletion(c audio.Completion) bool
	Playing() (single bool, tracks int)
	Completions() <-chan audio.Completion
	SetWaitingClearer(fn func())
}

// Runtime is one play-through of a story: the current scene, choice gating,
// journey history and the audio session.
type Runtime struct {
	story     *Story
	assets    Assets
	player    Player
	renderer  Renderer
	exporter  ExporterInterface
	sessionID string
	entryID   string
	startName string

	mu      sync.Mutex
	current *Scene
	gate    Gate
	journey *Journey
	skin    string

	inbox chan Intent
}

// NewRuntime creates a runtime for story. Nothing is shown until Welcome or
// StartScene is called.
func NewRuntime(story *Story, assets Assets, player Player) *Runtime {
	r := &Runtime{
		story:     story,
		assets:    assets,
		player:    player,
		renderer:  nopRenderer{},
		entryID:   config.DefaultEntryID,
		startName: config.DefaultStartName,
		journey:   NewJourney(),
		inbox:     make(chan Intent, inboxSize),
	}
	player.SetWaitingClearer(r.clearWaiting)
	return r
}

func (r *Runtime) SetRenderer(renderer Renderer) {
	r.mu.Lock()
	r.renderer = renderer
	r.mu.Unlock()
}

func (r *Runtime) SetExporter(exporter ExporterInterface) {
	r.mu.Lock()
	r.exporter = exporter
	r.mu.Unlock()
}

// SetSessionID tags every event and payload with id.
func (r *Runtime) SetSessionID(id string) {
	r.mu.Lock()
	r.sessionID = id
	r.mu.Unlock()
}

func (r *Runtime) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// SetEntry overrides the entry scene id/label and the welcome scene name.
func (r *Runtime) SetEntry(entryID, startName string) {
	r.mu.Lock()
	if entryID != "" {
		r.entryID = entryID
	}
	if startName != "" {
		r.startName = startName
	}
	r.mu.Unlock()
}

// Preload fetches every image and audio clip the story references.
func (r *Runtime) Preload(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		r.assets.Preload(ctx, r.story.ImageURLs())
		return nil
	})
	g.Go(func() error {
		r.assets.PreloadAudio(ctx, r.story.AudioURLs())
		return nil
	})
	_ = g.Wait()
}

// ShowScene enters scene id and publishes its payload.
func (r *Runtime) ShowScene(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.showScene(ctx, id)
}

// HandleChoice follows the current scene's choice leading to next.
func (r *Runtime) HandleChoice(ctx context.Context, next string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handleChoice(ctx, next)
}

// StartScene shows the entry scene.
func (r *Runtime) StartScene(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startScene(ctx)
}

// Welcome publishes the welcome screen built from the start scene.
func (r *Runtime) Welcome(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.welcome(ctx)
}

// SwitchTrack makes label the audible track. Unknown labels are ignored.
func (r *Runtime) SwitchTrack(label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.switchTrack(label)
}

// Resume re-renders the current scene after a restore, or the welcome
// screen if the journey has not started.
func (r *Runtime) Resume(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return r.welcome(ctx)
	}
	return r.showScene(ctx, r.current.ID)
}

// SkinChanged records the presentation skin in use.
func (r *Runtime) SkinChanged(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.skin
	r.skin = name
	if prev != name {
		r.emit("info", "skin.changed", "", map[string]interface{}{"skin": name, "previous": prev})
	}
}

// Snapshot is a read-only view of runtime state.
type Snapshot struct {
	SessionID string `json:"session_id"`
	SceneID   string `json:"scene_id,omitempty"`
	Started   bool   `json:"started"`
	Looping   bool   `json:"looping"`
	Pending   string `json:"pending,omitempty"`
	Images    int    `json:"visited_images"`
	Audio     int    `json:"visited_audio"`
	Texts     int    `json:"visited_texts"`
	Skin      string `json:"skin,omitempty"`
}

func (r *Runtime) State() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		SessionID: r.sessionID,
		Started:   r.current != nil,
		Looping:   r.gate.Looping,
		Pending:   r.gate.Pending,
		Images:    len(r.journey.images),
		Audio:     len(r.journey.audio),
		Texts:     len(r.journey.texts),
		Skin:      r.skin,
	}
	if r.current != nil {
		s.SceneID = r.current.ID
	}
	return s
}

// Journey returns copies of the visited images, audio and texts.
func (r *Runtime) Journey() (images, audio, texts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.journey.Images(), r.journey.Audio(), r.journey.Texts()
}

func (r *Runtime) showScene(ctx context.Context, id string) error {
	scene, ok := r.story.Find(id)
	if !ok {
		cerr := &ContentError{Kind: SceneNotFound, ID: id}
		r.emit("warning", "scene.not_found", cerr.Error(), map[string]interface{}{"scene_id": id})
		r.render(ctx, Payload{
			Kind:    PayloadError,
			Error:   cerr,
			Message: cerr.Error(),
			Actions: []Action{{Kind: ActionStart, Label: "Return to Start"}},
		})
		return cerr
	}

	r.current = scene
	r.gate.reset()
	r.journey.Visit(scene)
	r.emit("info", "scene.entered", "", map[string]interface{}{
		"scene_id": scene.ID,
		"name":     scene.Name,
	})

	p := Payload{
		Kind:    PayloadScene,
		SceneID: scene.ID,
		Text:    CleanText(scene.Text),
		Scroll:  scene.ScrollText,
	}
	if scene.Image != "" {
		if _, ok := r.assets.FetchImage(ctx, scene.Image); ok {
			p.Image = scene.Image
		}
	}
	if scene.ScrollText {
		p.Slideshow = r.journey.Images()
	}

	if scene.Terminal() {
		p.Actions = exportActions()
		r.emit("info", "scene.terminal", "", map[string]interface{}{"scene_id": scene.ID})
	} else {
		for _, c := range scene.Choices {
			p.Actions = append(p.Actions, Action{Kind: ActionChoice, Label: c.Label, Target: c.Next})
		}
	}

	if len(scene.MultiAudio) > 0 {
		r.gate.Looping = true
		r.player.PlayMulti(ctx, scene.MultiAudio, r.deferredTransition(ctx))
		for _, label := range scene.MultiAudio.Labels() {
			p.Tracks = append(p.Tracks, Action{Kind: ActionTrack, Label: "Switch to " + label, Target: label})
		}
	} else if scene.Audio != "" {
		r.gate.Looping = scene.LoopAudio
		r.player.PlaySingle(ctx, scene.Audio, scene.LoopAudio, r.deferredTransition(ctx))
	}

	r.render(ctx, p)
	return nil
}

// deferredTransition is attached to the scene's voices. It performs the
// queued choice, if any, once playback ends on its own.
func (r *Runtime) deferredTransition(ctx context.Context) func() {
	ctx = context.WithoutCancel(ctx)
	return func() {
		if next, ok := r.gate.Take(); ok {
			r.showScene(ctx, next)
		}
	}
}

func (r *Runtime) handleChoice(ctx context.Context, next string) error {
	var choice Choice
	ok := false
	if r.current != nil {
		choice, ok = r.current.Choice(next)
	}
	if !ok {
		cerr := &ContentError{Kind: InvalidChoice, ID: next}
		fields := map[string]interface{}{"next": next}
		if r.current != nil {
			fields["scene_id"] = r.current.ID
		}
		r.emit("warning", "choice.invalid", cerr.Error(), fields)
		r.notify(ctx, Notice{Level: NoticeError, Message: cerr.Error()})
		return cerr
	}

	r.emit("info", "choice.selected", "", map[string]interface{}{
		"scene_id": r.current.ID,
		"next":     next,
		"label":    choice.Label,
	})

	if r.gate.Active() {
		single, tracks := r.player.Playing()
		if single {
			r.gate.Pending = next
			r.render(ctx, Payload{
				Kind:    PayloadWaiting,
				SceneID: r.current.ID,
				Actions: []Action{{Kind: ActionChoice, Label: choice.Label, Target: next}},
				Waiting: true,
			})
			r.player.DisableLoop()
			r.emit("info", "choice.queued", "", map[string]interface{}{
				"scene_id": r.current.ID,
				"next":     next,
			})
			return nil
		}
		if tracks > 0 {
			r.player.StopMulti()
		}
		r.gate.Pending = ""
	}
	return r.showScene(ctx, next)
}

func (r *Runtime) startScene(ctx context.Context) error {
	entry, ok := r.story.Entry(r.entryID)
	if !ok {
		cerr := &ContentError{Kind: NoEntryScene, ID: r.entryID}
		r.emit("error", "scene.not_found", cerr.Error(), map[string]interface{}{"entry_id": r.entryID})
		r.render(ctx, Payload{Kind: PayloadError, Error: cerr, Message: cerr.Error()})
		return cerr
	}
	return r.showScene(ctx, entry.ID)
}

func (r *Runtime) welcome(ctx context.Context) error {
	start, ok := r.story.FindByName(r.startName)
	if !ok {
		cerr := &ContentError{Kind: NoEntryScene, ID: r.startName}
		r.render(ctx, Payload{Kind: PayloadError, Error: cerr, Message: cerr.Error()})
		return cerr
	}

	p := Payload{
		Kind:    PayloadWelcome,
		SceneID: start.ID,
		Text:    welcomeText(start.Text),
		Actions: []Action{{Kind: ActionStart, Label: r.entryID}},
	}
	if start.Image != "" {
		if _, ok := r.assets.FetchImage(ctx, start.Image); ok {
			p.Image = start.Image
		}
	}
	r.render(ctx, p)
	return nil
}

func (r *Runtime) switchTrack(label string) bool {
	return r.player.SwitchTrack(label)
}

// clearWaiting runs before a deferred transition fires.
func (r *Runtime) clearWaiting() {
	r.render(context.Background(), Payload{Kind: PayloadWaiting})
}

func exportActions() []Action {
	return []Action{
		{Kind: ActionExport, Label: "Download Your Adventure Comic", Target: "comic"},
		{Kind: ActionExport, Label: "Download Your Sonic Journey", Target: "audio"},
	}
}

func (r *Runtime) render(ctx context.Context, p Payload) {
	p.SessionID = r.sessionID
	if err := r.renderer.Render(ctx, p); err != nil {
		r.emit("error", "system.error", "render failed: "+err.Error(), map[string]interface{}{
			"payload": string(p.Kind),
		})
	}
}

func (r *Runtime) notify(ctx context.Context, n Notice) {
	if err := r.renderer.Notify(ctx, n); err != nil {
		r.emit("error", "system.error", "notify failed: "+err.Error(), nil)
	}
}

func (r *Runtime) emit(level, name, msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if r.sessionID != "" {
		fields["session_id"] = r.sessionID
	}
	events.Emit(level, name, msg, fields)
}
