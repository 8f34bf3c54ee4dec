package orchestrator

import "context"

// PayloadKind selects how a renderer presents a payload.
type PayloadKind string

const (
	PayloadWelcome PayloadKind = "welcome"
	PayloadScene   PayloadKind = "scene"
	PayloadError   PayloadKind = "error"
	PayloadWaiting PayloadKind = "waiting"
)

// Action kinds offered to the player.
const (
	ActionChoice = "choice"
	ActionExport = "export"
	ActionStart  = "start"
	ActionTrack  = "track"
)

// Action is one control the renderer should offer. Invoking it sends the
// matching intent back.
type Action struct {
	Kind   string `json:"kind"`
	Label  string `json:"label"`
	Target string `json:"target,omitempty"`
}

// Payload is a complete view for the renderer.
type Payload struct {
	Kind      PayloadKind   `json:"kind"`
	SessionID string        `json:"session_id,omitempty"`
	SceneID   string        `json:"scene_id,omitempty"`
	Text      string        `json:"text,omitempty"`
	Image     string        `json:"image,omitempty"`
	Scroll    bool          `json:"scroll,omitempty"`
	Slideshow []string      `json:"slideshow,omitempty"`
	Actions   []Action      `json:"actions,omitempty"`
	Tracks    []Action      `json:"tracks,omitempty"`
	Error     *ContentError `json:"error,omitempty"`
	Message   string        `json:"message,omitempty"`
	// Waiting marks Actions as deferred; false with no actions clears every
	// waiting marker.
	Waiting bool `json:"waiting,omitempty"`
}

// Notice levels.
const (
	NoticeInfo    = "info"
	NoticeWarning = "warning"
	NoticeError   = "error"
)

// Notice is a blocking user notification, used for export outcomes.
type Notice struct {
	Level    string `json:"level"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// Renderer presents payloads and notices. Implementations own all markup.
type Renderer interface {
	Render(ctx context.Context, p Payload) error
	Notify(ctx context.Context, n Notice) error
}

// Renderers fans out to several renderers; the first error is returned
// after all have been tried.
type Renderers []Renderer

func (rs Renderers) Render(ctx context.Context, p Payload) error {
	var first error
	for _, r := range rs {
		if err := r.Render(ctx, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (rs Renderers) Notify(ctx context.Context, n Notice) error {
	var first error
	for _, r := range rs {
		if err := r.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopRenderer struct{}

func (nopRenderer) Render(context.Context, Payload) error { return nil }
func (nopRenderer) Notify(context.Context, Notice) error  { return nil }
