package inference

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"deviation-classifier-go/internal/apperr"
	"deviation-classifier-go/internal/types"
)

type fakePredictor struct {
	PredictFunc func(text, location string) (map[string]any, error)

	mu        sync.Mutex
	CallCount int
}

func (f *fakePredictor) Predict(text, location string) (map[string]any, error) {
	f.mu.Lock()
	f.CallCount++
	f.mu.Unlock()
	return f.PredictFunc(text, location)
}

func serviceWith(p Predictor) *Service {
	return NewWithLoader(func() (Predictor, error) { return p, nil }, nil)
}

func TestClassify_RebuildsPrediction(t *testing.T) {
	s := serviceWith(&fakePredictor{PredictFunc: func(string, string) (map[string]any, error) {
		return map[string]any{"severity": 4, "urgency": 5, "trend": 3, "type": 2, "routing": 2, "category": 1}, nil
	}})

	got, err := s.Classify(context.Background(), "vazamento", "Setor 3")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	want, _ := types.NewClassification(4, 5, 3, 2, 2, 1)
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestClassify_BlankInputs(t *testing.T) {
	fake := &fakePredictor{}
	s := serviceWith(fake)

	for _, tc := range []struct{ text, location string }{{"", "Setor 3"}, {"   ", "Setor 3"}, {"texto", ""}, {"texto", " \t"}} {
		_, err := s.Classify(context.Background(), tc.text, tc.location)
		if !apperr.Is(err, apperr.Inference) {
			t.Errorf("Classify(%q, %q): expected InferenceError, got %v", tc.text, tc.location, err)
		}
	}
	if fake.CallCount != 0 {
		t.Errorf("predictor must not run on blank input, ran %d times", fake.CallCount)
	}
}

func TestClassify_InvalidPredictionIsInferenceError(t *testing.T) {
	cases := map[string]map[string]any{
		"out of domain":  {"severity": 9, "urgency": 1, "trend": 1, "type": 1, "routing": 1, "category": 1},
		"missing field":  {"severity": 1, "urgency": 1, "trend": 1, "type": 1, "routing": 1},
		"string encoded": {"severity": "high", "urgency": 1, "trend": 1, "type": 1, "routing": 1, "category": 1},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			s := serviceWith(&fakePredictor{PredictFunc: func(string, string) (map[string]any, error) { return raw, nil }})
			_, err := s.Classify(context.Background(), "texto", "Setor 3")
			if !apperr.Is(err, apperr.Inference) {
				t.Fatalf("expected InferenceError, got %v", err)
			}
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected the validation failure as cause, got %v", err)
			}
		})
	}
}

func TestClassify_PredictorFailures(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		s := serviceWith(&fakePredictor{PredictFunc: func(string, string) (map[string]any, error) {
			return nil, errors.New("model exploded")
		}})
		if _, err := s.Classify(context.Background(), "texto", "Setor 3"); !apperr.Is(err, apperr.Inference) {
			t.Errorf("expected InferenceError, got %v", err)
		}
	})
	t.Run("panic", func(t *testing.T) {
		s := serviceWith(&fakePredictor{PredictFunc: func(string, string) (map[string]any, error) {
			panic("index out of range")
		}})
		if _, err := s.Classify(context.Background(), "texto", "Setor 3"); !apperr.Is(err, apperr.Inference) {
			t.Errorf("expected InferenceError, got %v", err)
		}
	})
}

func TestService_MissingArtifact(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.json"), nil)

	if s.Available(context.Background()) {
		t.Error("expected unavailable without artifact")
	}
	_, err := s.Classify(context.Background(), "texto", "Setor 3")
	if !apperr.Is(err, apperr.Inference) {
		t.Errorf("expected InferenceError, got %v", err)
	}
}

func TestService_LoadsArtifactOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := DefaultArtifact().Save(path); err != nil {
		t.Fatal(err)
	}

	var (
		mu    sync.Mutex
		loads int
	)
	s := NewWithLoader(func() (Predictor, error) {
		mu.Lock()
		loads++
		mu.Unlock()
		return LoadArtifact(path)
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Classify(context.Background(), "risco de queda", "Setor 3"); err != nil {
				t.Errorf("Classify failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if !s.Available(context.Background()) {
		t.Error("expected available after load")
	}
	if loads != 1 {
		t.Errorf("expected one load, got %d", loads)
	}
}

func TestService_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := DefaultArtifact().Save(path); err != nil {
		t.Fatal(err)
	}
	s := New(path, nil)

	got, err := s.Classify(context.Background(), "Identificado risco grave de queda na escada do setor 3", "Setor 3")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got.Category != types.CategoryEpiOrEpc || got.Routing != types.RoutingUnit {
		t.Errorf("unexpected classification %v", got.Labels())
	}
}
