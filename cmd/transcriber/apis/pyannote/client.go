// Package pyannote diarizes audio through a pyannote HTTP sidecar.
package pyannote

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
	"strconv"
	"strings"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/transcribe"
)

const URLDefault = "http://localhost:8388"

type Config struct {
	URL string
	// HFToken authorizes the sidecar to fetch the gated diarization model.
	HFToken string
	Timeout time.Duration
}

func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = URLDefault
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
	if c.HFToken == "" {
		return fmt.Errorf("invalid HFToken: should not be empty")
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
	Segments    []segment `json:"segments"`
	NumSpeakers int       `json:"num_speakers"`
	Error       string    `json:"error,omitempty"`
}

type segment struct {
	SpeakerID string  `json:"speaker_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

func (c *Client) Diarize(ctx context.Context, audioPath string, numSpeakers int) ([]transcribe.SpeakerTurn, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, failure.IO(fmt.Errorf("failed to open audio file: %w", err))
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(func() error {
			part, err := mw.CreateFormFile("audio", filepath.Base(audioPath))
			if err != nil {
				return fmt.Errorf("failed to create form file: %w", err)
			}
			if _, err := io.Copy(part, f); err != nil {
				return fmt.Errorf("failed to write audio data: %w", err)
			}
			if numSpeakers > 0 {
				if err := mw.WriteField("num_speakers", strconv.Itoa(numSpeakers)); err != nil {
					return fmt.Errorf("failed to write field: %w", err)
				}
			}
			return mw.Close()
		}())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/diarize", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.HFToken)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var res response
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("diarization failed: %s", res.Error)
	}

	slog.Debug("diarization done",
		slog.Int("segments", len(res.Segments)),
		slog.Int("speakers", res.NumSpeakers),
		slog.Duration("elapsed", time.Since(start)))

	turns := make([]transcribe.SpeakerTurn, 0, len(res.Segments))
	for _, s := range res.Segments {
		turns = append(turns, transcribe.SpeakerTurn{
			Speaker: s.SpeakerID,
			StartTS: int64(s.StartTime * 1000),
			EndTS:   int64(s.EndTime * 1000),
		})
	}

	return turns, nil
}
