package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/AaronLay10/StoryEngine/internal/audio"
	"github.com/AaronLay10/StoryEngine/internal/audio/audiotest"
	"github.com/AaronLay10/StoryEngine/internal/comic"
	"github.com/AaronLay10/StoryEngine/internal/export"
	"github.com/AaronLay10/StoryEngine/internal/media"
)

const testStoryJSON = `[
  {"id": "welcome", "name": "START", "text": "Hello [[note]]\nfriend", "image": "start.png"},
  {"id": "BEGIN YOUR ADVENTURE", "text": "You wake. The room is dark.", "image": "a.png",
   "audio": "a.wav", "loopAudio": true,
   "choices": [{"label": "Go north", "next": "north"}, {"label": "Go south", "next": "south"}]},
  {"id": "north", "text": "North [[fx:wind]]road.", "image": "b.png",
   "multiAudio": {"strings": "s.wav", "drums": "d.wav"},
   "choices": [{"label": "Back", "next": "BEGIN YOUR ADVENTURE"}, {"label": "On", "next": "end"}]},
  {"id": "south", "text": "South.", "image": "a.png", "audio": "b.wav",
   "choices": [{"label": "Lost", "next": "nowhere"}, {"label": "End", "next": "end"}]},
  {"id": "end", "text": "The end. Really.", "image": "c.png", "scrollText": true, "comicText": "Fin"}
]`

type recordingRenderer struct {
	mu       sync.Mutex
	payloads []Payload
	notices  []Notice
}

func (r *recordingRenderer) Render(_ context.Context, p Payload) error {
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	r.mu.Unlock()
	return nil
}

func (r *recordingRenderer) Notify(_ context.Context, n Notice) error {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
	return nil
}

func (r *recordingRenderer) last() Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.payloads) == 0 {
		return Payload{}
	}
	return r.payloads[len(r.payloads)-1]
}

func (r *recordingRenderer) all() []Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Payload, len(r.payloads))
	copy(out, r.payloads)
	return out
}

func (r *recordingRenderer) lastNotice() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

type memFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls map[string]int
}

func (f *memFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	d, ok := f.data[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (f *memFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// frameDecoder turns every byte into one silent stereo frame.
type frameDecoder struct{}

func (frameDecoder) DecodeAudio(_ string, data []byte) (*media.Buffer, error) {
	return media.NewBuffer(44100, 2, len(data)), nil
}

func pngData(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type harness struct {
	rt      *Runtime
	story   *Story
	rend    *recordingRenderer
	backend *audiotest.Backend
	fetch   *memFetcher
	cache   *media.Cache
	sink    *export.MemorySink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	story, err := ParseStory([]byte(testStoryJSON), "START")
	if err != nil {
		t.Fatalf("ParseStory: %v", err)
	}
	img := pngData(t)
	fetch := &memFetcher{
		calls: make(map[string]int),
		data: map[string][]byte{
			"start.png": img,
			"a.png":     img,
			"b.png":     img,
			"c.png":     img,
			"a.wav":     make([]byte, 100),
			"b.wav":     make([]byte, 50),
			"s.wav":     make([]byte, 10),
			"d.wav":     make([]byte, 10),
		},
	}
	cache := media.NewCache(fetch, frameDecoder{}, 4)
	backend := audiotest.NewBackend()
	session := audio.NewSession(backend, cache)
	rend := &recordingRenderer{}
	sink := export.NewMemorySink()

	rt := NewRuntime(story, cache, session)
	rt.SetRenderer(rend)
	rt.SetSessionID("test-session")
	rt.SetExporter(NewExporter(cache, comic.NewGenerator(cache, comic.DefaultPanels), sink, 44100))

	return &harness{rt: rt, story: story, rend: rend, backend: backend, fetch: fetch, cache: cache, sink: sink}
}

func actionKinds(p Payload) map[string]int {
	out := make(map[string]int)
	for _, a := range p.Actions {
		out[a.Kind]++
	}
	return out
}
