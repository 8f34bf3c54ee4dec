// Command mixdown renders a sonic journey WAV offline, either from clips
// given on the command line or from a recorded session in the event log.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/AaronLay10/StoryEngine/internal/audio/ebitenaudio"
	"github.com/AaronLay10/StoryEngine/internal/config"
	"github.com/AaronLay10/StoryEngine/internal/media"
	"github.com/AaronLay10/StoryEngine/internal/mixdown"
	"github.com/AaronLay10/StoryEngine/internal/orchestrator"
	"github.com/AaronLay10/StoryEngine/internal/storage/postgres"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: mixdown [flags] [clip ...]\n\n")
	fmt.Fprintf(os.Stderr, "With -session, clips are the audio of the scenes visited in that\n")
	fmt.Fprintf(os.Stderr, "session, read from Postgres (PG* env vars) and resolved against -story.\n\n")
	flag.PrintDefaults()
}

// sessionClips returns the distinct single-audio clips of a recorded session,
// in first-visit order.
func sessionClips(ctx context.Context, fetcher *media.SourceFetcher, storyPath, sessionID string) ([]string, error) {
	story, err := orchestrator.LoadStory(ctx, storyPath, fetcher, config.DefaultStartName)
	if err != nil {
		return nil, err
	}
	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		return nil, err
	}
	pg, err := postgres.New("mixdown", postgres.ConnString(password))
	if err != nil {
		return nil, err
	}
	defer pg.Close()

	state, _, err := orchestrator.RestoreFromEvents(pg, sessionID, orchestrator.DefaultRestoreLimit)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("no events for session %q", sessionID)
	}

	journey := orchestrator.NewJourney()
	for _, id := range state.Visited {
		if sc, ok := story.Find(id); ok {
			journey.Visit(sc)
		}
	}
	return journey.Audio(), nil
}

func main() {
	out := flag.String("o", "your-sonic-journey.wav", "output file")
	rate := flag.Int("rate", config.DefaultSampleRate, "output sample rate")
	baseDir := flag.String("base", "", "base directory for relative clip paths")
	storyPath := flag.String("story", config.DefaultStoryPath, "story document (with -session)")
	session := flag.String("session", "", "render the journey of a recorded session")
	timeout := flag.Duration("timeout", config.DefaultFetchTimeout, "per-clip fetch timeout")
	flag.Usage = usage
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	fetcher := media.NewSourceFetcher(*baseDir, *timeout)
	clips := flag.Args()
	if *session != "" {
		var err error
		if clips, err = sessionClips(ctx, fetcher, *storyPath, *session); err != nil {
			log.Fatalf("mixdown: %v", err)
		}
	}
	if len(clips) == 0 {
		usage()
		os.Exit(2)
	}

	cache := media.NewCache(fetcher, ebitenaudio.Decoder{SampleRate: *rate}, config.DefaultPreloadConcurrency)
	cache.PreloadAudio(ctx, clips)

	var bufs []*media.Buffer
	for _, url := range clips {
		buf, ok := cache.CachedAudio(url)
		if !ok {
			log.Printf("mixdown: skipping %s", url)
			continue
		}
		bufs = append(bufs, buf)
	}

	mixed, err := mixdown.Render(bufs, *rate, 2)
	if err != nil {
		log.Fatalf("mixdown: %v", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("mixdown: %v", err)
	}
	if err := mixdown.EncodeWAV(f, mixed); err != nil {
		f.Close()
		log.Fatalf("mixdown: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("mixdown: %v", err)
	}
	log.Printf("wrote %s (%d clips, %s)", *out, len(bufs), mixed.Duration().Round(time.Millisecond))
}
