// Package api exposes the classification pipeline over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"deviation-classifier-go/internal/actionable"
	"deviation-classifier-go/internal/aggregator"
	"deviation-classifier-go/internal/apperr"
	"deviation-classifier-go/internal/history"
	"deviation-classifier-go/internal/logger"
	"deviation-classifier-go/internal/pipeline"
	"deviation-classifier-go/internal/types"
)

// StrictReviewer is the non-degrading review entry point behind /api/review.
type StrictReviewer interface {
	Review(ctx context.Context, text, location string, candidate types.Classification) (types.Classification, error)
}

type Deps struct {
	Pipeline    *pipeline.Service
	Transcriber pipeline.Transcriber
	Inferrer    pipeline.Inferrer
	Reviewer    StrictReviewer
	History     history.Store
	Log         *logger.Logger

	// MaxUploadBytes caps request bodies. Zero means 50 MB.
	MaxUploadBytes int64
}

const maxListLimit = 500

type Server struct {
	deps Deps
}

func New(d Deps) *Server {
	if d.History == nil {
		d.History = history.Nop{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 50 << 20
	}
	return &Server{deps: d}
}

// Routes returns the HTTP handler with logging and CORS applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /classify", s.classify)
	mux.HandleFunc("POST /api/classify-deviation", s.classify)
	mux.HandleFunc("POST /api/transcribe", s.transcribe)
	mux.HandleFunc("POST /api/infer", s.infer)
	mux.HandleFunc("POST /api/review", s.review)
	mux.HandleFunc("GET /api/classifications", s.classifications)
	mux.HandleFunc("GET /api/classifications/summary", s.summary)
	return s.withLogging(withCORS(mux))
}

func (s *Server) reqLog(r *http.Request) *logrus.Entry {
	return s.deps.Log.WithRequest(r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	log := s.reqLog(r)
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"error":  fmt.Sprint(rec),
			})
		}
	}()

	services := s.deps.Pipeline.Health(r.Context())
	status, code := "healthy", http.StatusOK
	for _, ok := range services {
		if !ok {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}
	log.WithField("services", services).Debug("health check")
	writeJSON(w, code, map[string]any{"status": status, "services": services})
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	log := s.reqLog(r).WithField("handler", "classify")

	form, err := parseForm(w, r, s.deps.MaxUploadBytes)
	if err != nil {
		writeError(w, log, err)
		return
	}
	req, err := types.NewClassificationRequest(form.Local, form.Description, form.Audio)
	if err != nil {
		writeError(w, log, err)
		return
	}
	log = log.WithField("location", req.Location)
	log.Info("classification request received")

	start := time.Now()
	out, err := s.deps.Pipeline.Run(r.Context(), req)
	if err != nil {
		writeError(w, log, err)
		return
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("classification done")

	rec := &history.Record{
		Location: req.Location,
		Text:     out.Text,
		HadAudio: req.HasAudio(),
		Inferred: out.Inferred,
		Final:    out.Final,
	}
	if err := s.deps.History.Save(r.Context(), rec); err != nil {
		log.WithError(err).Warn("could not record classification")
	}
	writeJSON(w, http.StatusOK, out.Final)
}

func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) {
	log := s.reqLog(r).WithField("handler", "transcribe")

	form, err := parseForm(w, r, s.deps.MaxUploadBytes)
	if err != nil {
		writeError(w, log, err)
		return
	}
	if form.Audio == nil {
		writeError(w, log, apperr.New(apperr.InvalidInput, "field 'audio' is required", nil))
		return
	}
	text, err := s.deps.Transcriber.Transcribe(r.Context(), form.Audio)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) infer(w http.ResponseWriter, r *http.Request) {
	log := s.reqLog(r).WithField("handler", "infer")

	form, err := parseForm(w, r, s.deps.MaxUploadBytes)
	if err != nil {
		writeError(w, log, err)
		return
	}
	c, err := s.deps.Inferrer.Classify(r.Context(), deref(form.Description), form.Local)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) review(w http.ResponseWriter, r *http.Request) {
	log := s.reqLog(r).WithField("handler", "review")

	form, err := parseForm(w, r, s.deps.MaxUploadBytes)
	if err != nil {
		writeError(w, log, err)
		return
	}
	if strings.TrimSpace(form.Local) == "" || strings.TrimSpace(deref(form.Description)) == "" {
		writeError(w, log, apperr.New(apperr.InvalidInput, "fields 'local' and 'description' are required", nil))
		return
	}
	if form.Classification == nil {
		writeError(w, log, apperr.New(apperr.InvalidInput, "field 'classification' is required", nil))
		return
	}
	candidate, err := types.ParseClassification(form.Classification)
	if err != nil {
		writeError(w, log, err)
		return
	}
	c, err := s.deps.Reviewer.Review(r.Context(), *form.Description, form.Local, candidate)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) classifications(w http.ResponseWriter, r *http.Request) {
	log := s.reqLog(r).WithField("handler", "classifications")

	recs, err := s.recent(r)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs, "count": len(recs)})
}

// summary aggregates the most recent classifications and suggests follow-ups.
func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	log := s.reqLog(r).WithField("handler", "summary")

	recs, err := s.recent(r)
	if err != nil {
		writeError(w, log, err)
		return
	}
	entries := make([]aggregator.Entry, len(recs))
	for i, rec := range recs {
		final := rec.Final
		entries[i] = aggregator.Entry{Location: rec.Location, Result: &final, Corrected: rec.Corrected()}
	}
	sum := aggregator.Aggregate(entries)
	writeJSON(w, http.StatusOK, map[string]any{"summary": sum, "actions": actionable.Generate(sum)})
}

func (s *Server) recent(r *http.Request) ([]history.Record, error) {
	limit := history.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			return nil, apperr.New(apperr.InvalidInput,
				fmt.Sprintf("limit must be between 1 and %d", maxListLimit), map[string]any{"limit": v})
		}
		limit = n
	}
	return s.deps.History.Recent(r.Context(), limit)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
