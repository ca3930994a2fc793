package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when no entry exists for an id or URL.
var ErrNotFound = errors.New("imagegate/cache: not found")

// Entry is one cached image.
type Entry struct {
	ContentType string    `msgpack:"content_type"`
	Data        []byte    `msgpack:"data"`
	SourceURL   string    `msgpack:"source_url,omitempty"`
	CreatedAt   time.Time `msgpack:"created_at"`
}

// ImageCache stores images in a FileStore. Generated images are keyed by
// the sha256 of their bytes; fetched images by the sha256 of their URL.
type ImageCache struct {
	files FileStore
	clock clockwork.Clock
}

// Option configures an ImageCache.
type Option func(*ImageCache)

// WithClock sets the clock used to stamp entries.
func WithClock(c clockwork.Clock) Option {
	return func(ic *ImageCache) { ic.clock = c }
}

// New creates an ImageCache over files.
func New(files FileStore, opts ...Option) *ImageCache {
	c := &ImageCache{files: files}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	return c
}

// Put stores a generated image and returns its id.
func (c *ImageCache) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:])
	err := c.write(ctx, imagePath(id), Entry{
		ContentType: contentType,
		Data:        data,
		CreatedAt:   c.clock.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the image stored under id.
func (c *ImageCache) Get(ctx context.Context, id string) (Entry, error) {
	if !ValidID(id) {
		return Entry{}, ErrNotFound
	}
	return c.read(ctx, imagePath(id))
}

// PutURL stores an image fetched from url.
func (c *ImageCache) PutURL(ctx context.Context, url string, data []byte, contentType string) error {
	return c.write(ctx, urlPath(url), Entry{
		ContentType: contentType,
		Data:        data,
		SourceURL:   url,
		CreatedAt:   c.clock.Now().UTC(),
	})
}

// GetURL returns the image previously fetched from url.
func (c *ImageCache) GetURL(ctx context.Context, url string) (Entry, error) {
	return c.read(ctx, urlPath(url))
}

// ValidID reports whether id has the shape of an id returned by Put.
func ValidID(id string) bool {
	if len(id) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

func (c *ImageCache) write(ctx context.Context, path string, e Entry) error {
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("imagegate/cache: encode %s: %w", path, err)
	}
	w, err := c.files.Write(ctx, path)
	if err != nil {
		return fmt.Errorf("imagegate/cache: write %s: %w", path, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("imagegate/cache: write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("imagegate/cache: write %s: %w", path, err)
	}
	return nil
}

func (c *ImageCache) read(ctx context.Context, path string) (Entry, error) {
	r, err := c.files.Read(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("imagegate/cache: read %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return Entry{}, fmt.Errorf("imagegate/cache: read %s: %w", path, err)
	}
	var e Entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("imagegate/cache: decode %s: %w", path, err)
	}
	return e, nil
}

func imagePath(id string) string {
	return "images/" + id[:2] + "/" + id
}

func urlPath(url string) string {
	sum := sha256.Sum256([]byte(url))
	id := hex.EncodeToString(sum[:])
	return "urls/" + id[:2] + "/" + id
}
