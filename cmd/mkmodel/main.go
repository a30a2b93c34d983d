// Command mkmodel writes the default keyword model artifact.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"deviation-classifier-go/internal/inference"
	"deviation-classifier-go/internal/logger"
)

const sample = "Identificado risco grave de queda na escada do setor 3"

func main() {
	out := flag.String("out", "models_data/deviation_classifier.json", "artifact path")
	flag.Parse()

	log := logger.New()

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.WithError(err).Fatal("failed to create model directory")
	}
	model := inference.DefaultArtifact()
	if err := model.Save(*out); err != nil {
		log.WithError(err).Fatal("failed to write artifact")
	}
	log.WithFields(logrus.Fields{"path": *out, "version": model.Version}).Info("artifact written")

	pred, err := model.Predict(sample, "")
	if err != nil {
		log.WithError(err).Fatal("sample prediction failed")
	}
	b, _ := json.MarshalIndent(pred, "", "  ")
	fmt.Printf("%s\n%s\n", sample, b)
}
