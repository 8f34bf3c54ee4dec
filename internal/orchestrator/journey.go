package orchestrator

// Journey records the distinct images, audio clips and texts met during a
// play-through, in first-visit order. It only grows.
type Journey struct {
	images []string
	audio  []string
	texts  []string
	seen   map[string]struct{}
}

func NewJourney() *Journey {
	return &Journey{seen: make(map[string]struct{})}
}

// Visit appends the scene's media not seen before.
func (j *Journey) Visit(s *Scene) {
	j.images = j.add("image", j.images, s.Image)
	j.audio = j.add("audio", j.audio, s.Audio)
	j.texts = j.add("text", j.texts, s.Text)
}

func (j *Journey) add(kind string, list []string, v string) []string {
	if v == "" {
		return list
	}
	k := kind + "\x00" + v
	if _, ok := j.seen[k]; ok {
		return list
	}
	j.seen[k] = struct{}{}
	return append(list, v)
}

func (j *Journey) Images() []string { return clone(j.images) }
func (j *Journey) Audio() []string  { return clone(j.audio) }
func (j *Journey) Texts() []string  { return clone(j.texts) }

func clone(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
