// Package fasterwhisper recognizes speech through a faster-whisper HTTP
// sidecar.
package fasterwhisper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/transcribe"
)

const (
	URLDefault   = "http://localhost:8387"
	ModelDefault = "large-v3"
)

type Config struct {
	URL   string
	Model string
	// Timeout bounds a single request. Zero means no limit beyond the
	// caller's context.
	Timeout time.Duration
}

func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = URLDefault
	}
	if c.Model == "" {
		c.Model = ModelDefault
	}
}

func (c Config) IsValid() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL: scheme should be http or https")
	}
	if c.Model == "" {
		return fmt.Errorf("invalid Model: should not be empty")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid Timeout: should not be negative")
	}
	return nil
}

type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// IsAvailable checks whether the sidecar answers its health endpoint.
func (c *Client) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type response struct {
	Text     string    `json:"text"`
	Segments []segment `json:"segments"`
	Language string    `json:"language"`
	Error    string    `json:"error,omitempty"`
}

type segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (c *Client) Recognize(ctx context.Context, audioPath, language string) ([]transcribe.Segment, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", failure.IO(fmt.Errorf("failed to open audio file: %w", err))
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, f, filepath.Base(audioPath), map[string]string{
			"model":    c.cfg.Model,
			"language": transcribe.BaseLanguage(language),
		}))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/transcribe", pr)
	if err != nil {
		pr.Close()
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var res response
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, "", fmt.Errorf("failed to decode response: %w", err)
	}
	if res.Error != "" {
		return nil, "", fmt.Errorf("recognition failed: %s", res.Error)
	}

	slog.Debug("recognition done",
		slog.Int("segments", len(res.Segments)),
		slog.String("language", res.Language),
		slog.Duration("elapsed", time.Since(start)))

	segments := make([]transcribe.Segment, 0, len(res.Segments))
	for _, s := range res.Segments {
		segments = append(segments, transcribe.Segment{
			Text:    strings.TrimSpace(s.Text),
			StartTS: int64(s.Start * 1000),
			EndTS:   int64(s.End * 1000),
		})
	}

	lang := res.Language
	if lang == "" {
		lang = language
	}

	return segments, lang, nil
}

func writeForm(mw *multipart.Writer, r io.Reader, filename string, fields map[string]string) error {
	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write field %q: %w", k, err)
		}
	}
	return mw.Close()
}
