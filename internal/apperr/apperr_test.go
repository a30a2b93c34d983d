package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	inner := &ValidationError{Field: "severity", Value: 9, Reason: "out of domain"}
	wrapped := Wrap(Inference, "invalid classification returned by model", inner, nil)

	if k, ok := KindOf(wrapped); !ok || k != Inference {
		t.Errorf("expected InferenceError, got %q %v", k, ok)
	}
	if k, ok := KindOf(fmt.Errorf("outer: %w", inner)); !ok || k != Validation {
		t.Errorf("expected ValidationError, got %q %v", k, ok)
	}
	if _, ok := KindOf(errors.New("boom")); ok {
		t.Error("plain errors must not have a kind")
	}
	if !errors.Is(wrapped, inner) {
		t.Error("Wrap must keep the cause in the chain")
	}
}

func TestWrapRecordsCause(t *testing.T) {
	err := Wrap(Transcription, "failed to transcribe audio", errors.New("backend down"), nil)
	body := err.ToMap()
	if body["error"] != "TranscriptionError" {
		t.Errorf("unexpected error kind %v", body["error"])
	}
	details := body["details"].(map[string]any)
	if details["error"] != "backend down" {
		t.Errorf("expected cause text in details, got %v", details)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(InvalidInput, "bad", nil), http.StatusBadRequest},
		{New(Transcription, "bad", nil), http.StatusBadRequest},
		{New(Inference, "bad", nil), http.StatusBadRequest},
		{New(AIValidation, "bad", nil), http.StatusBadRequest},
		{&ValidationError{Field: "type"}, http.StatusBadRequest},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
