package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ineyio/imagegate"
	"github.com/ineyio/imagegate/cache"
)

const (
	maxBodyBytes   = 1 << 20
	wsWriteTimeout = 10 * time.Second
	imagePrefix    = "/api/images/"
	staticPrefix   = "/examples/"
)

type generateRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

type generateResponse struct {
	ID            string   `json:"id"`
	ImageURL      string   `json:"imageUrl"`
	ImageURLs     []string `json:"imageUrls"`
	RevisedPrompt string   `json:"revisedPrompt,omitempty"`
	Generator     string   `json:"generator,omitempty"`
	Model         string   `json:"model,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	var resp imagegate.GenerateResponse
	err := s.queue.EnterAndGenerate(r.Context(), func(ctx context.Context) error {
		var err error
		resp, err = s.generator.Generate(ctx, imagegate.GenerateRequest{
			Prompt: req.Prompt,
			Size:   imagegate.Size(req.Size),
		})
		return err
	})
	if err != nil {
		s.logger.Warn("generate image", "error", err)
		writeError(w, err)
		return
	}

	urls := make([]string, 0, len(resp.Images))
	for _, img := range resp.Images {
		u, err := s.imageURL(r.Context(), img)
		if err != nil {
			s.logger.Error("store generated image", "error", err)
			writeErrorMessage(w, http.StatusInternalServerError, "Failed to store generated image")
			return
		}
		urls = append(urls, u)
	}

	out := generateResponse{
		ID:            uuid.New().String(),
		ImageURLs:     urls,
		RevisedPrompt: resp.RevisedPrompt,
		Generator:     resp.Generator,
		Model:         resp.Model,
	}
	if len(urls) > 0 {
		out.ImageURL = urls[0]
	}
	writeJSON(w, http.StatusOK, out)
}

// imageURL returns a URL the client can load img from.
func (s *Server) imageURL(ctx context.Context, img imagegate.Image) (string, error) {
	if img.URL != "" {
		return img.URL, nil
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	if s.images == nil {
		return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data), nil
	}
	id, err := s.images.Put(ctx, img.Data, contentType)
	if err != nil {
		return "", err
	}
	return imagePrefix + id, nil
}

func (s *Server) handleProxyImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Image URL is required")
		return
	}

	e, err := s.fetcher.Fetch(r.Context(), raw)
	if err != nil {
		s.logger.Warn("proxy image", "url", truncate(raw, 50), "error", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", e.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.WriteHeader(http.StatusOK)
	w.Write(e.Data)
}

type downloadRequest struct {
	ImageURL string `json:"imageUrl"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ImageURL == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Image URL is required")
		return
	}

	var (
		e   cache.Entry
		err error
	)
	if id, ok := strings.CutPrefix(req.ImageURL, imagePrefix); ok {
		e, err = s.cachedImage(r.Context(), id)
	} else if strings.HasPrefix(req.ImageURL, staticPrefix) {
		e, err = s.staticImage(req.ImageURL)
	} else {
		e, err = s.fetcher.Fetch(r.Context(), req.ImageURL)
	}
	if err != nil {
		s.logger.Warn("download image", "url", truncate(req.ImageURL, 50), "error", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", e.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.cfg.DownloadFilename))
	w.WriteHeader(http.StatusOK)
	w.Write(e.Data)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	e, err := s.cachedImage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", e.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(e.Data)
}

func (s *Server) cachedImage(ctx context.Context, id string) (cache.Entry, error) {
	if s.images == nil {
		return cache.Entry{}, cache.ErrNotFound
	}
	return s.images.Get(ctx, id)
}

// staticImage reads a sample image from the static directory. Paths that
// leave the directory are not found.
func (s *Server) staticImage(urlPath string) (cache.Entry, error) {
	if s.cfg.StaticDir == "" {
		return cache.Entry{}, cache.ErrNotFound
	}
	name := strings.TrimPrefix(path.Clean(urlPath), "/")
	if !strings.HasPrefix("/"+name, staticPrefix) || !fs.ValidPath(name) {
		return cache.Entry{}, cache.ErrNotFound
	}
	data, err := fs.ReadFile(os.DirFS(s.cfg.StaticDir), name)
	if errors.Is(err, fs.ErrNotExist) {
		return cache.Entry{}, cache.ErrNotFound
	}
	if err != nil {
		return cache.Entry{}, fmt.Errorf("imagegate/server: read %s: %w", name, err)
	}
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "image/png"
	}
	return cache.Entry{ContentType: contentType, Data: data, SourceURL: urlPath}, nil
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Status(r.Context()))
}

func (s *Server) handleQueueReset(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("active count reset over http", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, activeMessage{Active: s.queue.Counter().Reset(r.Context())})
}

type activeMessage struct {
	Active int64 `json:"active"`
}

// handleQueueStream pushes the active count to a websocket client whenever
// it changes. Clients share the queue's store subscription; the poll tick
// catches changes the store cannot publish.
func (s *Server) handleQueueStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client sends nothing; reading detects when it goes away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	changed := make(chan struct{}, 1)
	unsubscribe := s.queue.Subscribe(func(int64) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ticker := s.clock.NewTicker(s.queue.Config().PollInterval)
	defer ticker.Stop()

	last := int64(-1)
	send := func() error {
		n := s.queue.Counter().Active(ctx)
		if n == last {
			return nil
		}
		last = n
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(activeMessage{Active: n})
	}

	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-changed:
		case <-ticker.Chan():
		}
		if err := send(); err != nil {
			return
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
