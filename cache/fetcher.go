package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Sentinel errors returned by Fetcher.
var (
	ErrInvalidURL = errors.New("imagegate/cache: invalid image url")
	ErrUpstream   = errors.New("imagegate/cache: upstream fetch failed")
	ErrTooLarge   = errors.New("imagegate/cache: image too large")
)

const (
	// BrowserUserAgent is sent upstream; some image hosts reject bare clients.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	defaultContentType = "image/png"
	defaultMaxBytes    = 32 << 20
	defaultTimeout     = 60 * time.Second
)

// Fetcher downloads remote images, reading through an optional ImageCache.
type Fetcher struct {
	client   *http.Client
	cache    *ImageCache
	maxBytes int64
	logger   *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithCache makes the fetcher read from and fill cache.
func WithCache(c *ImageCache) FetcherOption {
	return func(f *Fetcher) { f.cache = c }
}

// WithMaxBytes bounds the size of a fetched image.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: defaultTimeout},
		maxBytes: defaultMaxBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the image at rawURL. Cached copies are served without a
// request; fresh downloads are cached. Cache failures are logged, not
// returned.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Entry, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	if f.cache != nil {
		e, err := f.cache.GetURL(ctx, rawURL)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, ErrNotFound) {
			f.logger.Warn("read image cache", "url", rawURL, "error", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", BrowserUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Entry{}, fmt.Errorf("%w: %d %s", ErrUpstream, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if int64(len(data)) > f.maxBytes {
		return Entry{}, fmt.Errorf("%w: over %d bytes", ErrTooLarge, f.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	e := Entry{ContentType: contentType, Data: data, SourceURL: rawURL}

	if f.cache != nil {
		if err := f.cache.PutURL(ctx, rawURL, data, contentType); err != nil {
			f.logger.Warn("write image cache", "url", rawURL, "error", err)
		}
	}
	return e, nil
}
