package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/AaronLay10/StoryEngine/internal/audio"
)

// Choice is a labelled edge to another scene.
type Choice struct {
	Label string `json:"label"`
	Next  string `json:"next"`
}

// Scene is one node of the story graph.
type Scene struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Text       string   `json:"text,omitempty"`
	Image      string   `json:"image,omitempty"`
	Audio      string   `json:"audio,omitempty"`
	LoopAudio  bool     `json:"loopAudio,omitempty"`
	MultiAudio TrackMap `json:"multiAudio,omitempty"`
	Choices    []Choice `json:"choices,omitempty"`
	ScrollText bool     `json:"scrollText,omitempty"`
	ComicText  string   `json:"comicText,omitempty"`
}

// Terminal reports whether the scene has no outgoing choices.
func (s *Scene) Terminal() bool {
	return len(s.Choices) == 0
}

// Choice returns the declared choice leading to next.
func (s *Scene) Choice(next string) (Choice, bool) {
	for _, c := range s.Choices {
		if c.Next == next {
			return c, true
		}
	}
	return Choice{}, false
}

// TrackMap is the multiAudio object: label to URL, in document order.
type TrackMap []audio.Track

func (m *TrackMap) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*m = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("multiAudio: expected object, got %v", tok)
	}

	var out TrackMap
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := tok.(string)
		var url string
		if err := dec.Decode(&url); err != nil {
			return fmt.Errorf("multiAudio %q: %w", label, err)
		}
		// duplicate keys keep their first position, last value
		if i, ok := seen[label]; ok {
			out[i].URL = url
			continue
		}
		seen[label] = len(out)
		out = append(out, audio.Track{Label: label, URL: url})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

func (m TrackMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(t.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(t.URL)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Labels returns the track labels in document order.
func (m TrackMap) Labels() []string {
	out := make([]string, len(m))
	for i, t := range m {
		out[i] = t.Label
	}
	return out
}

// Story is the loaded scene list. Lookups return the first match, so
// duplicate ids shadow later scenes.
type Story struct {
	Scenes []Scene
	byID   map[string]int
}

func NewStory(scenes []Scene) *Story {
	s := &Story{Scenes: scenes, byID: make(map[string]int, len(scenes))}
	for i := range scenes {
		if _, ok := s.byID[scenes[i].ID]; !ok {
			s.byID[scenes[i].ID] = i
		}
	}
	return s
}

func (s *Story) Find(id string) (*Scene, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.Scenes[i], true
}

func (s *Story) FindByName(name string) (*Scene, bool) {
	for i := range s.Scenes {
		if s.Scenes[i].Name == name {
			return &s.Scenes[i], true
		}
	}
	return nil, false
}

// Entry returns the scene with id entryID, or else the first scene offering
// a choice labelled entryID.
func (s *Story) Entry(entryID string) (*Scene, bool) {
	if sc, ok := s.Find(entryID); ok {
		return sc, true
	}
	for i := range s.Scenes {
		for _, c := range s.Scenes[i].Choices {
			if c.Label == entryID {
				return &s.Scenes[i], true
			}
		}
	}
	return nil, false
}

// ComicText returns the comic caption authored for the scene whose text is
// text. It satisfies comic.CaptionLookup.
func (s *Story) ComicText(text string) string {
	for i := range s.Scenes {
		if s.Scenes[i].Text == text {
			return s.Scenes[i].ComicText
		}
	}
	return ""
}

// ImageURLs lists every scene image in story order, duplicates included.
func (s *Story) ImageURLs() []string {
	var out []string
	for _, sc := range s.Scenes {
		if sc.Image != "" {
			out = append(out, sc.Image)
		}
	}
	return out
}

// AudioURLs lists every single and multi-track clip in story order.
func (s *Story) AudioURLs() []string {
	var out []string
	for _, sc := range s.Scenes {
		if sc.Audio != "" {
			out = append(out, sc.Audio)
		}
		for _, t := range sc.MultiAudio {
			out = append(out, t.URL)
		}
	}
	return out
}
