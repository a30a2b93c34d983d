// Package transcription turns deviation audio into text through an
// OpenAI-compatible speech-to-text server (faster-whisper-server,
// whisper.cpp server, or the hosted API).
package transcription

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"deviation-classifier-go/internal/apperr"
	"deviation-classifier-go/internal/lazy"
	"deviation-classifier-go/internal/logger"
)

const probeTimeout = 10 * time.Second

type Config struct {
	URL          string
	Model        string
	Language     string
	Timeout      time.Duration
	MaxRetryTime time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logrus.Entry
	model      *lazy.Value[string]
	newBackOff func() backoff.BackOff
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func New(cfg Config, log *logrus.Entry) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger.OrNop(log).WithField("component", "transcription"),
	}
	c.newBackOff = c.defaultBackOff
	c.model = lazy.New(c.loadModel)
	c.log.WithField("model", cfg.Model).Info("transcription client initialized")
	return c
}

// WithHTTPClient overrides the internal HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.httpClient = h
	}
	return c
}

// loadModel checks once that the backend answers before the first
// transcription. The result is shared by every request in the process.
func (c *Client) loadModel() (string, error) {
	if c.cfg.URL == "" {
		return "", fmt.Errorf("TRANSCRIBE_URL not set")
	}
	c.log.WithField("model", c.cfg.Model).Info("loading transcription model")

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	var models modelList
	newReq := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/models", nil)
	}
	if err := c.doJSON(ctx, newReq, &models, &backoff.StopBackOff{}); err != nil {
		c.log.WithField("error", err.Error()).Error("failed to load transcription model")
		return "", err
	}

	listed := false
	for _, m := range models.Data {
		if strings.Contains(m.ID, c.cfg.Model) {
			listed = true
			break
		}
	}
	c.log.WithFields(logrus.Fields{"model": c.cfg.Model, "listed": listed}).Info("transcription model ready")
	return c.cfg.Model, nil
}

// Transcribe converts audio bytes (MP3, WAV, ...) into text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", apperr.New(apperr.Transcription, "empty audio provided", nil)
	}

	model, err := c.model.Get()
	if err != nil {
		return "", apperr.Wrap(apperr.Transcription, "failed to load transcription model", err,
			map[string]any{"model": c.cfg.Model})
	}

	path, cleanup, err := c.writeTemp(audio)
	if err != nil {
		return "", apperr.Wrap(apperr.Transcription, "failed to stage audio", err, nil)
	}
	defer cleanup()

	c.log.WithField("bytes", len(audio)).Info("starting audio transcription")

	var out transcriptionResponse
	newReq := func(ctx context.Context) (*http.Request, error) {
		return c.uploadRequest(ctx, path, model)
	}
	if err := c.doJSON(ctx, newReq, &out, c.newBackOff()); err != nil {
		c.log.WithField("error", err.Error()).Error("transcription failed")
		return "", apperr.Wrap(apperr.Transcription, "failed to transcribe audio", err, nil)
	}

	text := strings.TrimSpace(out.Text)
	c.log.WithField("chars", len(text)).Info("transcription completed")
	return text, nil
}

// Available reports whether the model can be loaded. It never panics.
func (c *Client) Available(_ context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("transcription probe panicked")
			ok = false
		}
	}()
	_, err := c.model.Get()
	return err == nil
}

// writeTemp stores audio in a temporary file. The returned cleanup removes it
// and must run on every exit path.
func (c *Client) writeTemp(audio []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "deviation-audio-*.mp3")
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.log.WithField("path", path).WithField("error", err.Error()).Warn("could not remove temporary audio file")
		}
	}
	if _, err := f.Write(audio); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// uploadRequest streams the staged file as multipart/form-data. Each retry
// builds a fresh request so the body is re-read from disk.
func (c *Client) uploadRequest(ctx context.Context, path, model string) (*http.Request, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(c.writeForm(mw, path, model))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/audio/transcriptions", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

func (c *Client) writeForm(mw *multipart.Writer, path, model string) error {
	fields := [][2]string{
		{"model", model},
		{"language", c.cfg.Language},
		{"response_format", "json"},
	}
	for _, kv := range fields {
		if kv[1] == "" {
			continue
		}
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return mw.Close()
}
