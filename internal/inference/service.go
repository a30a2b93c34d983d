// Package inference classifies deviation narratives with a locally stored
// keyword model.
package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"deviation-classifier-go/internal/apperr"
	"deviation-classifier-go/internal/lazy"
	"deviation-classifier-go/internal/logger"
	"deviation-classifier-go/internal/types"
)

type Service struct {
	path  string
	log   *logrus.Entry
	model *lazy.Value[Predictor]
}

// New returns a service that loads the artifact at path on first use.
func New(path string, log *logrus.Entry) *Service {
	s := &Service{path: path, log: logger.OrNop(log).WithField("component", "inference")}
	s.model = lazy.New(s.loadArtifact)
	return s
}

// NewWithLoader is New with a custom model loader.
func NewWithLoader(load func() (Predictor, error), log *logrus.Entry) *Service {
	return &Service{
		log:   logger.OrNop(log).WithField("component", "inference"),
		model: lazy.New(load),
	}
}

func (s *Service) loadArtifact() (Predictor, error) {
	s.log.WithField("path", s.path).Info("loading model")
	a, err := LoadArtifact(s.path)
	if err != nil {
		s.log.WithError(err).Error("model load failed")
		return nil, err
	}
	s.log.WithField("version", a.Version).Info("model ready")
	return a, nil
}

func (s *Service) predictor() (Predictor, error) {
	p, err := s.model.Get()
	if err != nil {
		return nil, apperr.Wrap(apperr.Inference, "failed to load model", err, map[string]any{"path": s.path})
	}
	return p, nil
}

// Classify runs the model on text and rebuilds its output into a validated
// record. Every failure is an InferenceError.
func (s *Service) Classify(_ context.Context, text, location string) (c types.Classification, err error) {
	if strings.TrimSpace(text) == "" {
		return types.Classification{}, apperr.New(apperr.Inference, "empty text provided for classification", nil)
	}
	if strings.TrimSpace(location) == "" {
		return types.Classification{}, apperr.New(apperr.Inference, "location not provided for classification", nil)
	}

	p, err := s.predictor()
	if err != nil {
		return types.Classification{}, err
	}

	log := s.log.WithField("location", location)
	log.Info("classifying")
	log.WithField("text", truncate(text, 100)).Debug("model input")

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("model panicked")
			c, err = types.Classification{}, apperr.Wrap(apperr.Inference,
				"error classifying deviation with model", fmt.Errorf("panic: %v", r), nil)
		}
	}()

	raw, err := p.Predict(text, location)
	if err != nil {
		log.WithError(err).Error("prediction failed")
		return types.Classification{}, apperr.Wrap(apperr.Inference, "error classifying deviation with model", err, nil)
	}

	c, err = types.ParseClassification(raw)
	if err != nil {
		log.WithError(err).Error("model returned invalid classification")
		return types.Classification{}, apperr.Wrap(apperr.Inference,
			"invalid classification returned by model", err, map[string]any{"prediction": raw})
	}
	log.WithFields(logrus.Fields(toFields(c))).Info("classified")
	return c, nil
}

// Available reports whether the model can be loaded. It never panics.
func (s *Service) Available(_ context.Context) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_, err := s.model.Get()
	return err == nil
}

func toFields(c types.Classification) map[string]any {
	out := map[string]any{}
	for k, v := range c.Fields() {
		out[k] = v
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
