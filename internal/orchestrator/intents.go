package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/AaronLay10/StoryEngine/internal/audio"
	"github.com/AaronLay10/StoryEngine/internal/events"
	"github.com/AaronLay10/StoryEngine/internal/export"
)

// Intent is a command for the runtime, from a renderer or the audio backend.
type Intent interface {
	IntentName() string
}

// ChoiceSelected picks the choice leading to Next.
type ChoiceSelected struct {
	Next string
}

// TrackSwitch makes Label the audible track of a multi-track scene.
type TrackSwitch struct {
	Label string
}

// ExportRequested renders and delivers a journey artifact.
type ExportRequested struct {
	Kind export.Kind
}

// StartRequested leaves the welcome screen for the entry scene.
type StartRequested struct{}

// WelcomeRequested shows the welcome screen.
type WelcomeRequested struct{}

// PlaybackCompleted reports a voice's natural end.
type PlaybackCompleted struct {
	audio.Completion
}

func (ChoiceSelected) IntentName() string    { return "choice" }
func (TrackSwitch) IntentName() string       { return "track" }
func (ExportRequested) IntentName() string   { return "export" }
func (StartRequested) IntentName() string    { return "start" }
func (WelcomeRequested) IntentName() string  { return "welcome" }
func (PlaybackCompleted) IntentName() string { return "completion" }

// WireIntent is the transport form of an intent:
// {"type":"choice","next":"cave"}, {"type":"track","label":"drums"},
// {"type":"export","kind":"audio"}, {"type":"start"}, {"type":"welcome"}.
type WireIntent struct {
	Type  string `json:"type"`
	Next  string `json:"next,omitempty"`
	Label string `json:"label,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// Intent converts w into a runtime intent. Completions cannot arrive over
// the wire.
func (w WireIntent) Intent() (Intent, error) {
	switch w.Type {
	case "choice":
		if w.Next == "" {
			return nil, fmt.Errorf("choice intent missing next")
		}
		return ChoiceSelected{Next: w.Next}, nil
	case "track":
		return TrackSwitch{Label: w.Label}, nil
	case "export":
		k, err := export.ParseKind(w.Kind)
		if err != nil {
			return nil, err
		}
		return ExportRequested{Kind: k}, nil
	case "start":
		return StartRequested{}, nil
	case "welcome":
		return WelcomeRequested{}, nil
	}
	return nil, fmt.Errorf("unknown intent type %q", w.Type)
}

// Dispatch applies one intent. It is the single entry point for renderer
// input and playback completions.
func (r *Runtime) Dispatch(ctx context.Context, in Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch in := in.(type) {
	case ChoiceSelected:
		return r.handleChoice(ctx, in.Next)
	case TrackSwitch:
		r.switchTrack(in.Label)
		return nil
	case ExportRequested:
		_, err := r.export(ctx, in.Kind)
		return err
	case StartRequested:
		return r.startScene(ctx)
	case WelcomeRequested:
		return r.welcome(ctx)
	case PlaybackCompleted:
		r.player.HandleCompletion(in.Completion)
		return nil
	}
	return fmt.Errorf("unsupported intent %T", in)
}

// Post queues an intent for Run. It reports false if the queue is full.
func (r *Runtime) Post(in Intent) bool {
	select {
	case r.inbox <- in:
		return true
	default:
		return false
	}
}

// Run serializes posted intents and playback completions until ctx ends.
func (r *Runtime) Run(ctx context.Context) error {
	completions := r.player.Completions()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in := <-r.inbox:
			r.dispatchLogged(ctx, in)
		case c, ok := <-completions:
			if !ok {
				completions = nil
				continue
			}
			r.dispatchLogged(ctx, PlaybackCompleted{Completion: c})
		}
	}
}

// dispatchLogged runs one intent for the loop. Content errors and empty
// exports have already been emitted and shown to the player; anything else
// is logged and recorded as system.error.
func (r *Runtime) dispatchLogged(ctx context.Context, in Intent) {
	err := r.Dispatch(ctx, in)
	var cerr *ContentError
	if err == nil || errors.As(err, &cerr) || errors.Is(err, ErrNothingToExport) {
		return
	}
	log.Printf("orchestrator: %s intent failed: %v", in.IntentName(), err)
	events.Emit("error", "system.error", err.Error(), map[string]interface{}{
		"intent":     in.IntentName(),
		"session_id": r.SessionID(),
	})
}
