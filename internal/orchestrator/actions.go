package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AaronLay10/StoryEngine/internal/comic"
	"github.com/AaronLay10/StoryEngine/internal/export"
	"github.com/AaronLay10/StoryEngine/internal/media"
	"github.com/AaronLay10/StoryEngine/internal/mixdown"
)

// Channels of the exported recording.
const exportChannels = 2

// ExportRequest is the journey slice an export works from.
type ExportRequest struct {
	SessionID string
	Images    []string
	Audio     []string
	Texts     []string
	Captions  comic.CaptionLookup
}

// ExporterInterface renders and delivers export artifacts. Implementations
// return ErrNothingToExport when the request holds nothing usable.
type ExporterInterface interface {
	Export(ctx context.Context, kind export.Kind, req ExportRequest) (string, error)
}

// AudioSource yields decoded clips; *media.Cache satisfies it.
type AudioSource interface {
	FetchAudio(ctx context.Context, url string) (*media.Buffer, bool)
}

// Exporter renders the sonic journey and the comic page.
type Exporter struct {
	audio      AudioSource
	comic      *comic.Generator
	sink       export.Sink
	sampleRate int
}

func NewExporter(audio AudioSource, gen *comic.Generator, sink export.Sink, sampleRate int) *Exporter {
	return &Exporter{audio: audio, comic: gen, sink: sink, sampleRate: sampleRate}
}

func (e *Exporter) Export(ctx context.Context, kind export.Kind, req ExportRequest) (string, error) {
	var (
		data []byte
		err  error
	)
	switch kind {
	case export.KindAudio:
		data, err = e.renderAudio(ctx, req.Audio)
	case export.KindComic:
		data, err = e.renderComic(ctx, req)
	default:
		return "", fmt.Errorf("unknown export kind %q", kind)
	}
	if err != nil {
		return "", err
	}

	return e.sink.Deliver(ctx, export.Artifact{
		Kind:      kind,
		SessionID: req.SessionID,
		Data:      data,
		Created:   time.Now().UTC(),
	})
}

func (e *Exporter) renderAudio(ctx context.Context, urls []string) ([]byte, error) {
	clips := make([]*media.Buffer, 0, len(urls))
	for _, u := range urls {
		if buf, ok := e.audio.FetchAudio(ctx, u); ok {
			clips = append(clips, buf)
		}
	}

	mix, err := mixdown.Render(clips, e.sampleRate, exportChannels)
	if errors.Is(err, mixdown.ErrEmpty) {
		return nil, ErrNothingToExport
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(mixdown.HeaderSize + mixdown.DataSize(mix))
	if err := mixdown.EncodeWAV(&buf, mix); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Exporter) renderComic(ctx context.Context, req ExportRequest) ([]byte, error) {
	data, err := e.comic.Generate(ctx, req.Images, req.Texts, req.Captions)
	if errors.Is(err, comic.ErrNoImages) {
		return nil, ErrNothingToExport
	}
	return data, err
}

// Export renders and delivers kind from the journey so far. Outcomes are
// reported to the player through Notify; no artifact is delivered on failure.
func (r *Runtime) Export(ctx context.Context, kind export.Kind) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.export(ctx, kind)
}

func (r *Runtime) export(ctx context.Context, kind export.Kind) (string, error) {
	req := ExportRequest{
		SessionID: r.sessionID,
		Images:    r.journey.Images(),
		Audio:     r.journey.Audio(),
		Texts:     r.journey.Texts(),
		Captions:  r.story.ComicText,
	}

	empty := (kind == export.KindAudio && len(req.Audio) == 0) ||
		(kind == export.KindComic && len(req.Images) == 0)
	if empty {
		return "", r.exportEmpty(ctx, kind)
	}
	if r.exporter == nil {
		return "", r.exportFailed(ctx, kind, errors.New("exporter not configured"))
	}

	r.emit("info", "export.started", "", exportFields(kind))
	loc, err := r.exporter.Export(ctx, kind, req)
	if errors.Is(err, ErrNothingToExport) {
		return "", r.exportEmpty(ctx, kind)
	}
	if err != nil {
		return "", r.exportFailed(ctx, kind, err)
	}

	done := exportFields(kind)
	done["location"] = loc
	r.emit("info", "export.completed", "", done)
	r.notify(ctx, Notice{Level: NoticeInfo, Message: readyMessage(kind), Location: loc})
	return loc, nil
}

// exportFields returns a fresh field map per event. Emitted maps are kept by
// the event log and read by subscribers, so they are never written again.
func exportFields(kind export.Kind) map[string]interface{} {
	return map[string]interface{}{"kind": string(kind)}
}

func (r *Runtime) exportEmpty(ctx context.Context, kind export.Kind) error {
	msg := "No audio available from your journey. Try playing through the story first!"
	if kind == export.KindComic {
		msg = "No images available from your journey. Try playing through the story first!"
	}
	r.emit("warning", "export.empty", msg, exportFields(kind))
	r.notify(ctx, Notice{Level: NoticeWarning, Message: msg})
	return ErrNothingToExport
}

func (r *Runtime) exportFailed(ctx context.Context, kind export.Kind, err error) error {
	msg := "Sorry, there was an error generating your audio journey. Please try again."
	if kind == export.KindComic {
		msg = "Sorry, there was an error generating your comic. Please try again."
	}
	fields := exportFields(kind)
	fields["error"] = err.Error()
	r.emit("error", "export.failed", err.Error(), fields)
	r.notify(ctx, Notice{Level: NoticeError, Message: msg})
	return fmt.Errorf("export %s: %w", kind, err)
}

func readyMessage(kind export.Kind) string {
	if kind == export.KindComic {
		return "Your adventure comic is ready."
	}
	return "Your sonic journey is ready."
}
