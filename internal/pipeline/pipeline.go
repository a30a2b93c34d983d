// Package pipeline runs one deviation report through the classification
// stages: validate, transcribe (when audio is present), assemble the
// narrative, infer, review.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"deviation-classifier-go/internal/apperr"
	"deviation-classifier-go/internal/logger"
	"deviation-classifier-go/internal/types"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Available(ctx context.Context) bool
}

type Inferrer interface {
	Classify(ctx context.Context, text, location string) (types.Classification, error)
	Available(ctx context.Context) bool
}

// Reviewer must always return a usable record.
type Reviewer interface {
	ValidateAndCorrect(ctx context.Context, text, location string, candidate types.Classification) types.Classification
	Available(ctx context.Context) bool
}

// Health keys reported by Service.Health.
const (
	TranscriptionService = "transcription_service"
	MLService            = "ml_service"
	AIValidationService  = "ai_validation_service"
)

type Service struct {
	transcriber Transcriber
	inferrer    Inferrer
	reviewer    Reviewer
	log         *logrus.Entry
}

func New(t Transcriber, i Inferrer, r Reviewer, log *logrus.Entry) *Service {
	return &Service{
		transcriber: t,
		inferrer:    i,
		reviewer:    r,
		log:         logger.OrNop(log).WithField("component", "pipeline"),
	}
}

// Outcome records what each stage produced for one request.
type Outcome struct {
	Text       string
	Transcript string
	Inferred   types.Classification
	Final      types.Classification
}

// Classify runs the pipeline and returns the final record.
func (s *Service) Classify(ctx context.Context, req types.ClassificationRequest) (types.Classification, error) {
	out, err := s.Run(ctx, req)
	if err != nil {
		return types.Classification{}, err
	}
	return out.Final, nil
}

// Run executes the stages in order. Transcription and inference failures are
// returned unchanged; review never fails.
func (s *Service) Run(ctx context.Context, req types.ClassificationRequest) (Outcome, error) {
	var out Outcome
	if err := Validate(req); err != nil {
		return out, err
	}
	log := s.log.WithField("location", req.Location)
	log.Info("classification started")

	if req.HasAudio() {
		log.WithField("audio_bytes", len(req.Audio)).Info("transcribing audio")
		transcript, err := s.transcriber.Transcribe(ctx, req.Audio)
		if err != nil {
			log.WithError(err).Error("transcription failed")
			return out, err
		}
		out.Transcript = transcript
		log.WithField("transcript", transcript).Debug("transcription done")
	}

	text, err := AssembleText(req.DescriptionText(), out.Transcript)
	if err != nil {
		return out, withLocation(err, req.Location)
	}
	out.Text = text
	log.WithField("text", text).Debug("assembled text")

	out.Inferred, err = s.inferrer.Classify(ctx, text, req.Location)
	if err != nil {
		log.WithError(err).Error("inference failed")
		return out, err
	}
	log.WithField("classification", out.Inferred.Labels()).Info("model classification")

	out.Final = s.reviewer.ValidateAndCorrect(ctx, text, req.Location, out.Inferred)
	if err := out.Final.Validate(); err != nil {
		log.WithError(err).Warn("reviewer returned invalid record, keeping model classification")
		out.Final = out.Inferred
	}
	log.WithField("classification", out.Final.Labels()).Info("classification finished")
	return out, nil
}

// Validate re-checks a request that may not have gone through
// types.NewClassificationRequest.
func Validate(req types.ClassificationRequest) error {
	if strings.TrimSpace(req.Location) == "" {
		return apperr.New(apperr.InvalidInput, "field 'local' is required", nil)
	}
	details := map[string]any{"local": req.Location}
	if !req.HasDescription() && !req.HasAudio() {
		return apperr.New(apperr.InvalidInput, "at least one of 'description' or 'audio' must be provided", details)
	}
	if req.HasDescription() && strings.TrimSpace(*req.Description) == "" {
		return apperr.New(apperr.InvalidInput, "field 'description' must not be blank", details)
	}
	if req.HasAudio() && len(req.Audio) == 0 {
		return apperr.New(apperr.InvalidInput, "field 'audio' must not be empty", details)
	}
	return nil
}

// AssembleText joins the non-empty description and transcript, in that
// order, with a single space.
func AssembleText(description, transcript string) (string, error) {
	parts := make([]string, 0, 2)
	for _, p := range []string{description, transcript} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "", apperr.New(apperr.InvalidInput, "no content provided (description or audio)", nil)
	}
	return strings.Join(parts, " "), nil
}

// Health reports each capability's availability. A probe that panics counts
// as unavailable.
func (s *Service) Health(ctx context.Context) map[string]bool {
	return map[string]bool{
		TranscriptionService: s.probe(ctx, TranscriptionService, s.transcriber.Available),
		MLService:            s.probe(ctx, MLService, s.inferrer.Available),
		AIValidationService:  s.probe(ctx, AIValidationService, s.reviewer.Available),
	}
}

func (s *Service) probe(ctx context.Context, name string, available func(context.Context) bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithError(fmt.Errorf("panic: %v", r)).WithField("service", name).Error("health probe failed")
			ok = false
		}
	}()
	return available(ctx)
}

func withLocation(err error, location string) error {
	if ae, ok := err.(*apperr.Error); ok {
		if ae.Details == nil {
			ae.Details = map[string]any{}
		}
		ae.Details["local"] = location
	}
	return err
}
