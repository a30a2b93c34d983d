// Command batch classifies every deviation in a spreadsheet and writes the
// results, a summary and suggested follow-ups to a new workbook.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"deviation-classifier-go/internal/actionable"
	"deviation-classifier-go/internal/aggregator"
	"deviation-classifier-go/internal/config"
	"deviation-classifier-go/internal/dataset"
	"deviation-classifier-go/internal/history"
	"deviation-classifier-go/internal/inference"
	"deviation-classifier-go/internal/logger"
	"deviation-classifier-go/internal/pipeline"
	"deviation-classifier-go/internal/review"
	"deviation-classifier-go/internal/transcription"
	"deviation-classifier-go/internal/types"
)

func main() {
	_ = godotenv.Load()

	in := flag.String("in", "deviations.xlsx", "input workbook")
	out := flag.String("out", "classified.xlsx", "output workbook")
	workers := flag.Int("workers", 4, "rows classified in parallel")
	rowTimeout := flag.Duration("row-timeout", 3*time.Minute, "time limit per row")
	flag.Parse()

	log := logger.New()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rows, err := dataset.Load(*in)
	if err != nil {
		log.WithError(err).WithField("path", *in).Fatal("failed to load workbook")
	}
	log.WithFields(logrus.Fields{"path": *in, "rows": len(rows)}).Info("workbook loaded")

	transcriber := transcription.New(transcription.Config{
		URL:          cfg.Transcription.URL,
		Model:        cfg.Transcription.Model,
		Language:     cfg.Transcription.Language,
		Timeout:      cfg.Transcription.Timeout,
		MaxRetryTime: cfg.Transcription.MaxRetryTime,
	}, log.Entry)
	p := pipeline.New(
		transcriber,
		inference.New(cfg.ModelPath, log.Entry),
		review.New(review.Config{
			APIKey:  cfg.Review.APIKey,
			BaseURL: cfg.Review.BaseURL,
			Model:   cfg.Review.Model,
			Timeout: cfg.Review.Timeout,
		}, log.Entry),
		log.Entry,
	)

	var store history.Store = history.Nop{}
	if cfg.DatabaseURL != "" {
		pg, err := history.Open(ctx, cfg.DatabaseURL, log.Entry)
		if err != nil {
			log.WithError(err).Fatal("failed to open history store")
		}
		defer pg.Close()
		store = pg
	}

	r := &runner{
		pipeline:   p,
		store:      store,
		baseDir:    filepath.Dir(*in),
		rowTimeout: *rowTimeout,
		log:        log.WithField("component", "batch"),
	}
	results, err := r.run(ctx, rows, *workers)
	if err != nil {
		log.WithError(err).Fatal("batch interrupted")
	}

	summary := aggregator.Aggregate(dataset.Entries(results))
	cards := actionable.Generate(summary)
	if err := dataset.Save(*out, results, summary, actionable.Rows(cards)...); err != nil {
		log.WithError(err).Fatal("failed to write results")
	}
	log.WithFields(logrus.Fields{
		"path":       *out,
		"classified": summary.Classified,
		"failed":     summary.Failed,
	}).Info("batch finished")
}

type runner struct {
	pipeline   *pipeline.Service
	store      history.Store
	baseDir    string
	rowTimeout time.Duration
	log        *logrus.Entry
}

// run classifies rows with at most workers in flight. A failing row is
// recorded in its Result; only cancellation stops the batch.
func (r *runner) run(ctx context.Context, rows []dataset.Row, workers int) ([]dataset.Result, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]dataset.Result, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, row := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.classify(gctx, row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *runner) classify(ctx context.Context, row dataset.Row) dataset.Result {
	res := dataset.Result{Row: row}
	log := r.log.WithField("line", row.Line)

	audio, err := row.ReadAudio(r.baseDir)
	if err != nil {
		res.Err = err.Error()
		log.WithError(err).Warn("row skipped")
		return res
	}
	req, err := types.NewClassificationRequest(row.Location, row.Description, audio)
	if err != nil {
		res.Err = err.Error()
		log.WithError(err).Warn("row skipped")
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, r.rowTimeout)
	defer cancel()
	out, err := r.pipeline.Run(ctx, req)
	if err != nil {
		res.Err = err.Error()
		log.WithError(err).Warn("row failed")
		return res
	}
	res.Inferred, res.Final = &out.Inferred, &out.Final

	rec := &history.Record{Location: req.Location, Text: out.Text, HadAudio: req.HasAudio(), Inferred: out.Inferred, Final: out.Final}
	if err := r.store.Save(ctx, rec); err != nil {
		log.WithError(err).Warn("could not record classification")
	}
	return res
}
