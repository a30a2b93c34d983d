package review

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deviation-classifier-go/internal/apperr"
	"deviation-classifier-go/internal/types"
)

func mustClassification(t *testing.T, codes ...int) types.Classification {
	t.Helper()
	c, err := types.NewClassification(codes[0], codes[1], codes[2], codes[3], codes[4], codes[5])
	if err != nil {
		t.Fatal(err)
	}
	return c
}

type fakeGateway struct {
	status  int
	content string
	delay   time.Duration

	calls atomic.Int32

	mu      sync.Mutex
	lastReq chatRequest
	auth    string
}

func (g *fakeGateway) last() (chatRequest, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastReq, g.auth
}

func (g *fakeGateway) serve(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.calls.Add(1)
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		g.mu.Lock()
		g.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&g.lastReq)
		g.mu.Unlock()
		if g.delay > 0 {
			time.Sleep(g.delay)
		}
		if g.status != 0 && g.status != http.StatusOK {
			w.WriteHeader(g.status)
			_, _ = w.Write([]byte(`{"error":"upstream"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": g.content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateAndCorrect_Unconfigured(t *testing.T) {
	c := New(Config{BaseURL: "https://gateway.invalid/v1"}, nil)
	if c.Available(context.Background()) {
		t.Fatal("expected unavailable without api key")
	}

	for _, cand := range []types.Classification{
		mustClassification(t, 0, 0, 0, 0, 0, 0),
		mustClassification(t, 5, 5, 5, 2, 4, 12),
		mustClassification(t, 3, 2, 1, 1, 2, 7),
	} {
		for _, text := range []string{"", "vazamento de óleo", strings.Repeat("x", 5000)} {
			if got := c.ValidateAndCorrect(context.Background(), text, "Setor 3", cand); got != cand {
				t.Errorf("expected candidate back, got %v", got)
			}
		}
	}
}

func TestValidateAndCorrect_AppliesCorrection(t *testing.T) {
	g := &fakeGateway{content: "```json\n{\"severity\": 5, \"urgency\": 5, \"trend\": 4, \"type\": 2, \"routing\": 2, \"category\": 1}\n```"}
	srv := g.serve(t)
	c := New(Config{APIKey: "secret", BaseURL: srv.URL + "/"}, nil)

	cand := mustClassification(t, 3, 3, 2, 2, 2, 1)
	got := c.ValidateAndCorrect(context.Background(), "risco grave de queda", "Setor 3", cand)

	if want := mustClassification(t, 5, 5, 4, 2, 2, 1); got != want {
		t.Errorf("got %v, want %v", got.Labels(), want.Labels())
	}
	req, auth := g.last()
	if auth != "Bearer secret" {
		t.Errorf("unexpected auth header %q", auth)
	}
	if req.Model != "auto" || req.Temperature != 0.3 || req.MaxTokens != 500 {
		t.Errorf("unexpected request params %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages %+v", req.Messages)
	}
	user := req.Messages[1].Content
	if !strings.Contains(user, "Setor 3") || !strings.Contains(user, "risco grave de queda") || !strings.Contains(user, `"severity": 3`) {
		t.Errorf("user prompt missing context:\n%s", user)
	}
}

func TestValidateAndCorrect_DegradesOnBadReply(t *testing.T) {
	cases := map[string]*fakeGateway{
		"not json":        {content: "Looks fine to me."},
		"missing field":   {content: `{"severity": 5, "urgency": 5, "trend": 4, "type": 2, "routing": 2}`},
		"out of domain":   {content: `{"severity": 9, "urgency": 5, "trend": 4, "type": 2, "routing": 2, "category": 1}`},
		"string codes":    {content: `{"severity": "High", "urgency": 5, "trend": 4, "type": 2, "routing": 2, "category": 1}`},
		"empty content":   {content: ""},
		"server error":    {status: http.StatusInternalServerError},
		"unauthorized":    {status: http.StatusUnauthorized},
		"fenced not json": {content: "```json\nnope\n```"},
	}
	cand := mustClassification(t, 3, 3, 2, 2, 2, 1)
	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			srv := g.serve(t)
			c := New(Config{APIKey: "secret", BaseURL: srv.URL}, nil)

			if got := c.ValidateAndCorrect(context.Background(), "texto", "Setor 3", cand); got != cand {
				t.Errorf("expected candidate back, got %v", got.Labels())
			}
			if n := g.calls.Load(); n != 1 {
				t.Errorf("expected exactly one request, got %d", n)
			}
		})
	}
}

func TestValidateAndCorrect_Timeout(t *testing.T) {
	g := &fakeGateway{content: `{"severity": 5, "urgency": 5, "trend": 4, "type": 2, "routing": 2, "category": 1}`, delay: 200 * time.Millisecond}
	srv := g.serve(t)
	c := New(Config{APIKey: "secret", BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, nil)

	cand := mustClassification(t, 1, 1, 1, 1, 1, 1)
	if got := c.ValidateAndCorrect(context.Background(), "texto", "Setor 3", cand); got != cand {
		t.Errorf("expected candidate back after timeout, got %v", got.Labels())
	}
	if n := g.calls.Load(); n != 1 {
		t.Errorf("expected no retries, got %d requests", n)
	}
}

func TestReview_Strict(t *testing.T) {
	cand := mustClassification(t, 3, 3, 2, 2, 2, 1)

	t.Run("unconfigured", func(t *testing.T) {
		_, err := New(Config{}, nil).Review(context.Background(), "texto", "Setor 3", cand)
		if !apperr.Is(err, apperr.AIValidation) {
			t.Errorf("expected AIValidationError, got %v", err)
		}
	})

	t.Run("missing field", func(t *testing.T) {
		srv := (&fakeGateway{content: `{"severity": 1}`}).serve(t)
		_, err := New(Config{APIKey: "k", BaseURL: srv.URL}, nil).Review(context.Background(), "texto", "Setor 3", cand)
		if !apperr.Is(err, apperr.AIValidation) {
			t.Fatalf("expected AIValidationError, got %v", err)
		}
		if !strings.Contains(err.Error(), "urgency") {
			t.Errorf("expected the missing field named, got %v", err)
		}
	})

	t.Run("valid", func(t *testing.T) {
		srv := (&fakeGateway{content: `{"severity": 3, "urgency": 3, "trend": 2, "type": 2, "routing": 2, "category": 1, "note": "ok"}`}).serve(t)
		got, err := New(Config{APIKey: "k", BaseURL: srv.URL}, nil).Review(context.Background(), "texto", "Setor 3", cand)
		if err != nil {
			t.Fatalf("Review failed: %v", err)
		}
		if got != cand {
			t.Errorf("got %v, want %v", got, cand)
		}
	})
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"  {\"a\":1}\n":           `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		"```json\r\n{\"a\":1}```": `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSystemPrompt_ListsEveryCode(t *testing.T) {
	p := SystemPrompt()
	for _, d := range types.Domains() {
		if !strings.Contains(p, d.Legend()) {
			t.Errorf("prompt is missing legend for %s", d.Field)
		}
	}
	if !strings.Contains(p, "12=Other") || !strings.Contains(p, "4=EnvironmentAndQuality") {
		t.Error("prompt is missing expected values")
	}
}
