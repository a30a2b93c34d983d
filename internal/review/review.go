// Package review asks an OpenAI-compatible LLM gateway to confirm or
// correct a classification produced by the inference model.
//
// Review is the strict entry point: every failure is returned as an
// AIValidationError. ValidateAndCorrect is the one the pipeline uses; it
// never fails and falls back to the candidate it was given.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"deviation-classifier-go/internal/apperr"
	"deviation-classifier-go/internal/logger"
	"deviation-classifier-go/internal/types"
)

const (
	DefaultModel       = "auto"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 500
	DefaultTimeout     = 60 * time.Second
)

// Config for the gateway. Zero values select the defaults above.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logrus.Entry
}

func New(cfg Config, log *logrus.Entry) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger.OrNop(log).WithField("component", "review"),
	}
	if c.Available(context.Background()) {
		c.log.WithField("model", cfg.Model).Info("reviewer ready")
	} else {
		c.log.Warn("reviewer disabled: set LLM_API_KEY")
	}
	return c
}

// WithHTTPClient replaces the HTTP client. The configured timeout still
// applies per request through the context.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Available reports whether a credential and endpoint are configured. It
// never touches the network.
func (c *Client) Available(_ context.Context) bool {
	return c.cfg.APIKey != "" && c.cfg.BaseURL != ""
}

// ValidateAndCorrect returns the reviewer's record, or candidate unchanged
// when the reviewer is unconfigured, unreachable or replies with anything
// that is not a complete, valid record.
func (c *Client) ValidateAndCorrect(ctx context.Context, text, location string, candidate types.Classification) (out types.Classification) {
	log := c.log.WithField("location", location)
	if !c.Available(ctx) {
		log.Warn("reviewer unavailable, keeping model classification")
		return candidate
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("review panicked, keeping model classification")
			out = candidate
		}
	}()

	corrected, err := c.Review(ctx, text, location, candidate)
	if err != nil {
		log.WithError(err).Warn("review failed, keeping model classification")
		return candidate
	}

	if corrected != candidate {
		log.WithFields(logrus.Fields{
			"model":    candidate.Labels(),
			"reviewer": corrected.Labels(),
		}).Info("reviewer corrected classification")
	} else {
		log.Info("reviewer confirmed classification")
	}
	return corrected
}

// Review sends exactly one request to the gateway and parses the reply
// strictly.
func (c *Client) Review(ctx context.Context, text, location string, candidate types.Classification) (types.Classification, error) {
	if !c.Available(ctx) {
		return types.Classification{}, apperr.New(apperr.AIValidation, "reviewer not configured", nil)
	}

	c.log.WithField("location", location).Info("requesting review")
	content, err := c.chatCompletion(ctx, []message{
		{Role: "system", Content: SystemPrompt()},
		{Role: "user", Content: buildUserPrompt(text, location, candidate)},
	})
	if err != nil {
		return types.Classification{}, apperr.Wrap(apperr.AIValidation, "reviewer request failed", err, nil)
	}
	c.log.WithField("reply", content).Debug("reviewer reply")

	return parseReply(content)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) chatCompletion(ctx context.Context, msgs []message) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway returned %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("gateway returned no choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("gateway returned empty content")
	}
	return content, nil
}

var requiredFields = []string{
	types.FieldSeverity, types.FieldUrgency, types.FieldTrend,
	types.FieldType, types.FieldRouting, types.FieldCategory,
}

// parseReply reads the reviewer's flat record, optionally wrapped in a
// markdown code fence.
func parseReply(content string) (types.Classification, error) {
	raw := stripCodeFence(content)

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return types.Classification{}, apperr.Wrap(apperr.AIValidation,
			"reviewer reply is not valid JSON", err, map[string]any{"response": raw})
	}
	for _, f := range requiredFields {
		if _, ok := data[f]; !ok {
			return types.Classification{}, apperr.New(apperr.AIValidation,
				"reviewer reply is missing required field: "+f, map[string]any{"response": raw})
		}
	}
	c, err := types.ParseClassification(data)
	if err != nil {
		return types.Classification{}, apperr.Wrap(apperr.AIValidation,
			"reviewer reply is not a valid classification", err, map[string]any{"response": raw})
	}
	return c, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
