package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AaronLay10/StoryEngine/internal/events"
)

// ErrUnsupportedFormat is returned by decoders for unknown audio containers.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// AudioDecoder turns fetched bytes into a decoded Buffer. name is the asset
// URL and may be used to pick a container by extension.
type AudioDecoder interface {
	DecodeAudio(name string, data []byte) (*Buffer, error)
}

// Cache is a URL-keyed store of decoded images and audio. Each URL is fetched
// at most once while it stays resolved; concurrent requests for the same URL
// share one fetch. Failures are never cached.
type Cache struct {
	fetcher     Fetcher
	decoder     AudioDecoder
	concurrency int

	mu     sync.RWMutex
	images map[string]*Image
	audio  map[string]*Buffer

	group singleflight.Group
}

// NewCache creates a cache. concurrency bounds bulk preloads; <= 0 means unbounded.
func NewCache(fetcher Fetcher, decoder AudioDecoder, concurrency int) *Cache {
	return &Cache{
		fetcher:     fetcher,
		decoder:     decoder,
		concurrency: concurrency,
		images:      make(map[string]*Image),
		audio:       make(map[string]*Buffer),
	}
}

// FetchImage returns the image for url, or false if it is unavailable.
func (c *Cache) FetchImage(ctx context.Context, url string) (*Image, bool) {
	if url == "" {
		return nil, false
	}
	if img, ok := c.CachedImage(url); ok {
		return img, true
	}

	v, err, _ := c.group.Do("image:"+url, func() (interface{}, error) {
		if img, ok := c.CachedImage(url); ok {
			return img, nil
		}
		data, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		img := &Image{URL: url, Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}
		c.mu.Lock()
		c.images[url] = img
		c.mu.Unlock()
		return img, nil
	})
	if err != nil {
		assetFailed("image", url, err)
		return nil, false
	}
	return v.(*Image), true
}

// FetchAudio returns the decoded clip for url, or false if it is unavailable.
func (c *Cache) FetchAudio(ctx context.Context, url string) (*Buffer, bool) {
	if url == "" {
		return nil, false
	}
	if buf, ok := c.CachedAudio(url); ok {
		return buf, true
	}

	v, err, _ := c.group.Do("audio:"+url, func() (interface{}, error) {
		if buf, ok := c.CachedAudio(url); ok {
			return buf, nil
		}
		data, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		buf, err := c.decoder.DecodeAudio(url, data)
		if err != nil {
			return nil, fmt.Errorf("decode audio: %w", err)
		}
		c.mu.Lock()
		c.audio[url] = buf
		c.mu.Unlock()
		return buf, nil
	})
	if err != nil {
		assetFailed("audio", url, err)
		return nil, false
	}
	return v.(*Buffer), true
}

// CachedImage returns an already resolved image without fetching.
func (c *Cache) CachedImage(url string) (*Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.images[url]
	return img, ok
}

// CachedAudio returns an already decoded clip without fetching.
func (c *Cache) CachedAudio(url string) (*Buffer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	buf, ok := c.audio[url]
	return buf, ok
}

// Preload resolves the distinct non-empty image URLs concurrently and returns
// once every fetch has settled. Individual failures are logged, not returned.
func (c *Cache) Preload(ctx context.Context, urls []string) {
	c.preload(ctx, urls, func(ctx context.Context, u string) {
		c.FetchImage(ctx, u)
	})
}

// PreloadAudio is Preload for audio clips.
func (c *Cache) PreloadAudio(ctx context.Context, urls []string) {
	c.preload(ctx, urls, func(ctx context.Context, u string) {
		c.FetchAudio(ctx, u)
	})
}

func (c *Cache) preload(ctx context.Context, urls []string, fetch func(context.Context, string)) {
	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for _, u := range Distinct(urls) {
		u := u
		g.Go(func() error {
			fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
}

// Distinct returns the non-empty values of urls in first-seen order.
func Distinct(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func assetFailed(kind, url string, err error) {
	events.Emit("warning", "asset.failed", err.Error(), map[string]interface{}{
		"kind": kind,
		"url":  url,
	})
}
