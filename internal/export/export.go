// Package export delivers rendered journey artifacts to their destination.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Kind names an exportable artifact.
type Kind string

const (
	KindAudio Kind = "audio"
	KindComic Kind = "comic"
)

const (
	AudioFilename = "your-sonic-journey.wav"
	ComicFilename = "your-adventure-comic.pdf"
)

// ParseKind accepts "audio" and "comic".
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAudio, KindComic:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown export kind %q", s)
}

// Filename returns the download name for k.
func (k Kind) Filename() string {
	if k == KindComic {
		return ComicFilename
	}
	return AudioFilename
}

func (k Kind) ContentType() string {
	if k == KindComic {
		return "application/pdf"
	}
	return "audio/wav"
}

// Artifact is one finished export.
type Artifact struct {
	Kind      Kind
	SessionID string
	Data      []byte
	Created   time.Time
}

// Sink receives finished artifacts. Deliver returns where the artifact can
// be found (a path or URL path).
type Sink interface {
	Deliver(ctx context.Context, a Artifact) (string, error)
}

// DirSink writes artifacts under Dir/<session>/. Files appear atomically.
type DirSink struct {
	Dir string
}

func (s DirSink) Deliver(_ context.Context, a Artifact) (string, error) {
	dir := s.Dir
	if a.SessionID != "" {
		dir = filepath.Join(dir, a.SessionID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(a.Data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", a.Kind, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	dst := filepath.Join(dir, a.Kind.Filename())
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("rename %s: %w", a.Kind, err)
	}
	return dst, nil
}

// MemorySink keeps the latest artifact of each kind per session for download.
type MemorySink struct {
	mu    sync.RWMutex
	items map[string]Artifact
}

func NewMemorySink() *MemorySink {
	return &MemorySink{items: make(map[string]Artifact)}
}

func key(session string, k Kind) string {
	return session + "/" + string(k)
}

func (s *MemorySink) Deliver(_ context.Context, a Artifact) (string, error) {
	s.mu.Lock()
	s.items[key(a.SessionID, a.Kind)] = a
	s.mu.Unlock()
	return "/export/" + string(a.Kind) + "?session=" + a.SessionID, nil
}

// Get returns the latest artifact of kind k for session.
func (s *MemorySink) Get(session string, k Kind) (Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[key(session, k)]
	return a, ok
}

// Latest returns the newest artifact of kind k across all sessions.
func (s *MemorySink) Latest(k Kind) (Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  Artifact
		found bool
	)
	for _, a := range s.items {
		if a.Kind != k {
			continue
		}
		if !found || a.Created.After(best.Created) {
			best, found = a, true
		}
	}
	return best, found
}

// Tee delivers to every sink in order and returns the first location.
type Tee []Sink

func (t Tee) Deliver(ctx context.Context, a Artifact) (string, error) {
	var first string
	for i, s := range t {
		loc, err := s.Deliver(ctx, a)
		if err != nil {
			return "", err
		}
		if i == 0 {
			first = loc
		}
	}
	return first, nil
}
