package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fetcher retrieves raw asset bytes for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP error! status: %d", e.URL, e.Status)
}

// SourceFetcher loads http(s) URLs over the network and everything else
// (plain paths, file:// URLs) from disk relative to BaseDir.
type SourceFetcher struct {
	Client  *http.Client
	BaseDir string
}

// NewSourceFetcher returns a fetcher with an HTTP client bounded by timeout.
func NewSourceFetcher(baseDir string, timeout time.Duration) *SourceFetcher {
	return &SourceFetcher{
		Client:  &http.Client{Timeout: timeout},
		BaseDir: baseDir,
	}
}

func (f *SourceFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if IsRemote(rawURL) {
		return f.fetchHTTP(ctx, rawURL)
	}
	return os.ReadFile(f.localPath(rawURL))
}

// IsRemote reports whether rawURL is an http or https URL.
func IsRemote(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

func (f *SourceFetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Get performs a GET and fails on non-2xx. The caller closes the body.
func (f *SourceFetcher) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	return resp, nil
}

func (f *SourceFetcher) localPath(rawURL string) string {
	p := rawURL
	if strings.HasPrefix(rawURL, "file://") {
		if u, err := url.Parse(rawURL); err == nil {
			p = u.Path
		}
	}
	if filepath.IsAbs(p) || f.BaseDir == "" {
		return filepath.FromSlash(p)
	}
	return filepath.Join(f.BaseDir, filepath.FromSlash(p))
}
