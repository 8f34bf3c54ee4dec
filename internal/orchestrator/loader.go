package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"

	"github.com/AaronLay10/StoryEngine/internal/media"
)

// LoadStory reads the story document from an http(s) URL or a local file.
// Remote documents must answer 2xx with a JSON content type. The story must
// contain a scene named startName.
func LoadStory(ctx context.Context, source string, fetcher *media.SourceFetcher, startName string) (*Story, error) {
	var (
		data []byte
		err  error
	)
	if media.IsRemote(source) {
		data, err = fetchJSON(ctx, source, fetcher)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read story: %w", err)
	}
	return ParseStory(data, startName)
}

// ParseStory decodes a JSON array of scenes.
func ParseStory(data []byte, startName string) (*Story, error) {
	var scenes []Scene
	if err := json.Unmarshal(data, &scenes); err != nil {
		return nil, fmt.Errorf("failed to parse story JSON: %w", err)
	}

	story := NewStory(scenes)
	if _, ok := story.FindByName(startName); !ok {
		return nil, fmt.Errorf("no %s scene found in story data", startName)
	}
	return story, nil
}

func fetchJSON(ctx context.Context, url string, fetcher *media.SourceFetcher) ([]byte, error) {
	resp, err := fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil || mt != "application/json" {
		return nil, fmt.Errorf("response is not JSON (content-type %q)", ct)
	}
	return io.ReadAll(resp.Body)
}
